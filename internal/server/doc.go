// Package server hosts the Fiber HTTP service, request middleware chain, and
// the stub registry glue that wires path classification into the stub and
// forward handlers. It bootstraps Fiber, attaches logging and recovery
// middlewares, injects the StubRegistry built from config, and exposes router
// constructors that other packages (cmd entrypoint, proxy) can reuse. Keep
// exports narrow and accept explicit dependencies so handlers stay easy to
// fake in tests.
package server
