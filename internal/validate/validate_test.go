// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid http", "http://receiver.local", false},
		{"valid https with port", "https://receiver.local:8443", false},
		{"empty url", "", true},
		{"no host", "http://", true},
		{"invalid scheme", "ftp://receiver.local", true},
		{"no scheme", "receiver.local", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("enigma2.baseUrl", tt.value, "http", "https")
			if tt.wantErr == v.Valid() {
				t.Errorf("URL(%q) valid=%v, wantErr=%v (%v)", tt.value, v.Valid(), tt.wantErr, v.Err())
			}
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{":9090", false},
		{"127.0.0.1:8080", false},
		{"localhost", true},
		{":0", true},
		{":70000", true},
		{":http", true},
	}
	for _, tt := range tests {
		v := New()
		v.ListenAddr("ops.listen", tt.addr)
		if tt.wantErr == v.Valid() {
			t.Errorf("ListenAddr(%q) valid=%v, wantErr=%v", tt.addr, v.Valid(), tt.wantErr)
		}
	}
}

func TestBetween(t *testing.T) {
	var v Validator
	Between(&v, "xmltv.days", 7, 1, 14)
	Between(&v, "xmltv.days", 1, 1, 14)
	Between(&v, "xmltv.days", 14, 1, 14)
	Between(&v, "ingest.stepBudget", 50*time.Millisecond, time.Millisecond, 10*time.Second)
	Between(&v, "telemetry.samplingRate", 0.5, 0.0, 1.0)
	AtLeast(&v, "enigma2.retries", 0, 0)
	if !v.Valid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	Between(&v, "xmltv.days", 0, 1, 14)
	Between(&v, "xmltv.days", 15, 1, 14)
	Between(&v, "ingest.stepBudget", time.Minute, time.Millisecond, 10*time.Second)
	Between(&v, "telemetry.samplingRate", 1.5, 0.0, 1.0)
	AtLeast(&v, "enigma2.retries", -1, 0)

	var ve ValidationError
	if !errors.As(v.Err(), &ve) || len(ve.Errors()) != 5 {
		t.Fatalf("expected 5 errors, got %v", v.Err())
	}
	if msg := ve.Errors()[2].Message; msg != "must be between 1ms and 10s, got 1m0s" {
		t.Errorf("duration message = %q", msg)
	}
}

func TestValidator_Directory(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path    string
		wantErr bool
	}{
		{tmp, false},
		{filepath.Join(tmp, "not", "yet"), false},
		{"", true},
		{"../etc", true},
		{"data/../../etc", true},
		{"data..old", false},
		{file, true},
	}
	for _, tt := range tests {
		v := New()
		v.Directory("dataDir", tt.path)
		if tt.wantErr == v.Valid() {
			t.Errorf("Directory(%q) valid=%v, wantErr=%v", tt.path, v.Valid(), tt.wantErr)
		}
	}
	if _, err := os.Stat(filepath.Join(tmp, "not")); !errors.Is(err, os.ErrNotExist) {
		t.Error("validation must not create directories")
	}
}

func TestValidator_File(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "guide.xml")
	if err := os.WriteFile(file, []byte("<tv/>"), 0o600); err != nil {
		t.Fatal(err)
	}

	v := New()
	v.File("xmltv.dataFile", file)
	if !v.Valid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	v.File("xmltv.dataFile", tmp)
	v.File("xmltv.dataFile", filepath.Join(tmp, "nope.xml"))
	var ve ValidationError
	if !errors.As(v.Err(), &ve) || len(ve.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %v", v.Err())
	}
}

func TestValidator_Strings(t *testing.T) {
	v := New()
	v.NotEmpty("a", "x")
	v.OneOf("b", "sid", "sid", "sref", "name")
	v.LogLevel("c", "warn")
	v.Check("d", 1, nil)
	if !v.Valid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	v.NotEmpty("a", "   ")
	v.OneOf("b", "rid", "sid", "sref", "name")
	v.LogLevel("c", "trace")
	v.LogLevel("c", "")
	v.Check("d", 1, errors.New("too few"))

	var ve ValidationError
	if !errors.As(v.Err(), &ve) {
		t.Fatalf("errors.As failed: %v", v.Err())
	}
	wantFields := []string{"a", "b", "c", "c", "d"}
	if len(ve.Errors()) != len(wantFields) {
		t.Fatalf("expected %d errors, got %+v", len(wantFields), ve.Errors())
	}
	for i, e := range ve.Errors() {
		if e.Field != wantFields[i] {
			t.Errorf("error %d field = %q, want %q", i, e.Field, wantFields[i])
		}
	}
	if ve.Errors()[4].Message != "too few" {
		t.Errorf("check message = %q", ve.Errors()[4].Message)
	}
}

func TestValidationError_Format(t *testing.T) {
	v := New()
	if v.Err() != nil {
		t.Fatal("empty validator returned error")
	}

	v.NotEmpty("dbPath", "")
	if msg := v.Err().Error(); !strings.Contains(msg, "dbPath") || strings.Contains(msg, ";") {
		t.Fatalf("single error message = %q", msg)
	}

	AtLeast(v, "xmltv.days", 0, 1)
	err := v.Err()
	if msg := err.Error(); strings.Count(msg, ";") != 1 {
		t.Fatalf("multi error message = %q", msg)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatal("field errors must match ErrInvalid")
	}

	var ve ValidationError
	if !errors.As(err, &ve) || len(ve.Errors()) != 2 {
		t.Fatalf("errors.As failed: %v", err)
	}

	// Err returns a snapshot.
	v.NotEmpty("x", "")
	if len(ve.Errors()) != 2 {
		t.Fatal("snapshot mutated by later Fail")
	}
}
