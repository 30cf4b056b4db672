// Package tcpserver is an embeddable TCP server/client core: a manager
// event loop plus a worker pool of readiness-based event loops, a
// handle-safe connection lifecycle, and a user-supplied serializer
// boundary between raw bytes and application payloads.
//
// A typical embedding constructs an api.Config, implements EventHandler,
// and calls NewManager followed by Run:
//
//	cfg := api.DefaultConfig(7007)
//	cfg.RequestListener = true
//	mgr, err := tcpserver.NewManager(cfg, myHandler{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := mgr.Run(); err != nil {
//		log.Fatal(err)
//	}
//
// Run blocks until Shutdown or Abort has fully drained every connection
// and joined every worker goroutine.
package tcpserver
