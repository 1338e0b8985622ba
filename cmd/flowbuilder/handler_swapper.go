package main

import (
	"net/http"
	"sync/atomic"
)

// handlerSwapper serves through whichever handler was installed last.
// The panel handler is rebuilt on SIGHUP when logging settings change.
type handlerSwapper struct {
	current atomic.Pointer[http.Handler]
}

func newHandlerSwapper(h http.Handler) *handlerSwapper {
	s := &handlerSwapper{}
	s.Swap(h)
	return s
}

func (s *handlerSwapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.current.Load()).ServeHTTP(w, r)
}

// Swap installs h for subsequent requests. In-flight requests finish on the
// previous handler.
func (s *handlerSwapper) Swap(h http.Handler) {
	s.current.Store(&h)
}
