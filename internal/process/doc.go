// Package process supervises the target application.
//
// When target.launch is enabled the station starts the configured
// executable itself and keeps it alive: the process is restarted with
// exponential backoff when it exits, and an optional health check (usually
// "is the target window still there", see WindowCheck) kills and restarts
// a hung instance.
//
//	mgr := process.NewManager(process.FromLaunch("target", cfg.Target.Launch))
//	mgr.SetLogger(logger)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
