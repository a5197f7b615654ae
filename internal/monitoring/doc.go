// Package monitoring exports sweep progress as Prometheus metrics.
//
// A MetricsObserver is attached to the sweep controller next to the log
// observer. It keeps its own registry, so nothing is served over HTTP; at the
// end of a run the registry is written once in the text exposition format for
// node_exporter's textfile collector:
//
//	metrics := monitoring.NewMetricsObserver(logger, runID)
//	ctrl, _ := tuning.NewController(logger, params, client, sink,
//		tuning.WithObserver(tuning.MultiObserver{logObserver, metrics}))
//	ctrl.Run(ctx)
//	metrics.WriteTextfile("/var/lib/node_exporter/axetune.prom")
package monitoring
