/*
Package metrics exposes Prometheus counters, histograms, and gauges for
the three things worth watching in a running mount: FUSE upcall
latency and error rate, cache hit/miss ratio by cache variant, and
reconciler pass outcomes with the pending-change backlog.

	collector, err := metrics.NewCollector(metrics.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

	start := time.Now()
	err = doRead()
	collector.RecordUpcall("read", time.Since(start), err)

A Collector built with Config.Enabled == false accepts every Record*
call as a no-op, so callers never need to nil-check or branch on
whether metrics are turned on.
*/
package metrics
