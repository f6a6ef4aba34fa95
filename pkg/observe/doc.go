// Package observe exports tick statistics of a dataverse Context.
//
// Metrics records Prometheus counters, a duration histogram and a hot-node
// gauge; Tracer emits one OpenTelemetry span per tick. Both implement
// dataverse.Observer and can be combined with Multi:
//
//	metrics := observe.NewMetrics(observe.WithNamespace("editor"))
//	tracer := observe.NewTracer(observe.WithTracerName("editor"))
//	ctx := dataverse.NewContext(dataverse.WithObserver(observe.Multi(metrics, tracer)))
package observe
