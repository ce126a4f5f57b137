/*
Package observability turns run lifecycle events into logs and Prometheus
metrics.

Every constructor returns a domain.LifecycleHooks value that can be handed
to machine.WithHooks. Use Merge to combine several of them:

	metrics, _ := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := observability.Merge(metrics.Hooks(), observability.LogHooks(logger))
	m, _ := machine.New(repo, machine.WithHooks(hooks))
*/
package observability
