// Package host is the runtime that owns configured entries and drives their
// lifecycle.
//
// A Host keeps the entry registry, runs the integration's setup and unload
// hooks, forwards entries to platform handlers, tracks the entities and
// devices those platforms create, and publishes entity changes to an
// EntitySink. Entries that report ErrNotReady are retried with exponential
// backoff.
//
// Lifecycle hooks follow the order of a long-running process:
//
//	h := host.New(cfg)
//	h.SetIntegration(integ)
//	h.RegisterPlatform(host.PlatformSensor, sensors)
//	h.AddEntry(ctx, e)   // setup runs immediately
//	h.Start(ctx)         // AtStarted callbacks fire
//	...
//	h.Stop(ctx)          // OnStop callbacks fire
package host
