package ovweb

import "fmt"

// HTTPHandler handles one parsed, non-upgrade HTTP request.
type HTTPHandler func(s *Socket, req *Request)

// WSOpenFunc is invoked once a websocket upgrade completes.
type WSOpenFunc func(s *Socket)

// WSTextFunc/WSBinaryFunc handle a fully reassembled data message when no
// EventEngine is bound to the route.
type WSTextFunc func(s *Socket, payload []byte)
type WSBinaryFunc func(s *Socket, payload []byte)

// WSRoute is what a (host, uri) pair resolves to for websocket traffic.
type WSRoute struct {
	MaxFragments int
	Events       *EventEngine
	OnOpen       WSOpenFunc
	OnText       WSTextFunc
	OnBinary     WSBinaryFunc
}

type routeKey struct {
	host string
	uri  string
}

// Router dispatches {host, uri} to user-registered handlers: one table
// for plain HTTP, one for websocket upgrade targets. Keys are small
// fixed-length strings; max key length is enforced at registration.
type Router struct {
	limits Limits

	httpRoutes map[routeKey]HTTPHandler
	wsRoutes   map[routeKey]*WSRoute
	notFound   HTTPHandler
}

// MaxRouteKeyLen bounds host and uri lengths at registration.
const MaxRouteKeyLen = 255

// NewRouter creates an empty Router.
func NewRouter(limits Limits) *Router {
	return &Router{
		limits:     limits,
		httpRoutes: make(map[routeKey]HTTPHandler),
		wsRoutes:   make(map[routeKey]*WSRoute),
		notFound: func(s *Socket, req *Request) {
			s.reactor.Send(s.connID, []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"))
		},
	}
}

// HandleHTTP registers fn for (host, uri). host == "" matches any host
// not otherwise registered.
func (r *Router) HandleHTTP(host, uri string, fn HTTPHandler) error {
	if len(host) > MaxRouteKeyLen || len(uri) > MaxRouteKeyLen {
		return fmt.Errorf("route key exceeds %d bytes", MaxRouteKeyLen)
	}
	r.httpRoutes[routeKey{host, uri}] = fn
	return nil
}

// HandleWebsocket registers route for (host, uri).
func (r *Router) HandleWebsocket(host, uri string, route *WSRoute) error {
	if len(host) > MaxRouteKeyLen || len(uri) > MaxRouteKeyLen {
		return fmt.Errorf("route key exceeds %d bytes", MaxRouteKeyLen)
	}
	r.wsRoutes[routeKey{host, uri}] = route
	return nil
}

// SetNotFound overrides the default 404 handler.
func (r *Router) SetNotFound(fn HTTPHandler) { r.notFound = fn }

func (r *Router) matchHTTP(host, uri string) (HTTPHandler, bool) {
	if h, ok := r.httpRoutes[routeKey{host, uri}]; ok {
		return h, true
	}
	h, ok := r.httpRoutes[routeKey{"", uri}]
	return h, ok
}

func (r *Router) matchWS(host, uri string) (*WSRoute, bool) {
	if route, ok := r.wsRoutes[routeKey{host, uri}]; ok {
		return route, true
	}
	route, ok := r.wsRoutes[routeKey{"", uri}]
	return route, ok
}
