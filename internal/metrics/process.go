// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_proc_terminate_total",
		Help: "Signals sent to grabber process groups by signal and result",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_proc_wait_total",
		Help: "Grabber process exits by outcome",
	}, []string{"outcome"}) // outcome=exit0|exit_nonzero|forced_exit0|forced_error
)

func IncProcTerminate(signal, result string) { procTerminateTotal.WithLabelValues(signal, result).Inc() }
func IncProcWait(outcome string)             { procWaitTotal.WithLabelValues(outcome).Inc() }
