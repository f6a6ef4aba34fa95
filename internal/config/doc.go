// Package config provides configuration parsing for dataverse hosts.
//
// The configuration is stored in dataverse.yaml (or dataverse.json) in the
// working directory. This package handles loading, saving, validating and
// watching it.
//
// # Configuration File Structure
//
//	loop:
//	  fps: 60
//	  dispatchBuffer: 256
//	inspector:
//	  enabled: true
//	  addr: localhost:7070
//	metrics:
//	  namespace: dataverse
//	tracing:
//	  tracerName: github.com/vango-dev/dataverse
//	  skipIdle: true
//	  exporter: none
//	log:
//	  level: info
//
// Missing fields take their defaults.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := config.NewWatcher(cfg.Path(), func(next *config.Config) {
//	    loop.SetFPS(next.Loop.FPS)
//	})
//	go w.Run(ctx)
package config
