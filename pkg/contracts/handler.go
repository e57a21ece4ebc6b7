package contracts

import "github.com/julienschmidt/httprouter"

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// HandlerFunc adapts a route-registering function to the Handler interface.
type HandlerFunc func(*httprouter.Router)

func (f HandlerFunc) RegisterRoutes(router *httprouter.Router) {
	f(router)
}
