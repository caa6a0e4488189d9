package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const timeout = 10 * time.Second

type ApiServer struct {
	allowOrigin string

	close    atomic.Bool
	listener net.Listener

	requests chan ApiRequest

	clients     []*websocket.Conn
	clientsLock sync.RWMutex
}

type ApiRequestType string

const (
	ApiRequestTypeServices ApiRequestType = "services"
)

type ApiEventType string

const (
	ApiEventTypeServiceFound   ApiEventType = "service_found"
	ApiEventTypeServiceRemoved ApiEventType = "service_removed"
)

type ApiRequest struct {
	Type ApiRequestType
	Data any

	resp chan apiResponse
}

func (r *ApiRequest) Reply(data any, err error) {
	r.resp <- apiResponse{data, err}
}

type apiResponse struct {
	data any
	err  error
}

type ApiEvent struct {
	Type ApiEventType `json:"type"`
	Data any          `json:"data"`
}

func NewApiServer(address string, allowOrigin string) (_ *ApiServer, err error) {
	s := &ApiServer{allowOrigin: allowOrigin}
	s.requests = make(chan ApiRequest)

	s.listener, err = net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed starting api listener: %w", err)
	}

	log.Infof("api server listening on %s", s.listener.Addr())

	go s.serve()
	return s, nil
}

// NewStubApiServer returns a server that never receives requests.
func NewStubApiServer() *ApiServer {
	s := &ApiServer{}
	s.requests = make(chan ApiRequest)
	return s
}

func (s *ApiServer) handleRequest(req ApiRequest, w http.ResponseWriter, r *http.Request) {
	req.resp = make(chan apiResponse, 1)

	select {
	case s.requests <- req:
	case <-r.Context().Done():
		return
	case <-time.After(timeout):
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	resp := <-req.resp
	if resp.err != nil {
		log.WithError(resp.err).Errorf("failed handling request %s", req.Type)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp.data)
}

func (s *ApiServer) handler() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	})
	m.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		s.handleRequest(ApiRequest{Type: ApiRequestTypeServices}, w, r)
	})
	m.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		opts := &websocket.AcceptOptions{}
		if len(s.allowOrigin) > 0 {
			allow := s.allowOrigin
			allow = strings.TrimPrefix(allow, "http://")
			allow = strings.TrimPrefix(allow, "https://")
			allow = strings.TrimSuffix(allow, "/")
			opts.OriginPatterns = []string{allow}
		}

		c, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.WithError(err).Error("failed accepting websocket connection")
			return
		}

		s.clientsLock.Lock()
		s.clients = append(s.clients, c)
		s.clientsLock.Unlock()

		log.Debugf("new websocket client")

		for {
			_, _, err := c.Read(context.Background())
			if s.close.Load() {
				return
			} else if err != nil {
				log.WithError(err).Debug("websocket connection closed")

				s.clientsLock.Lock()
				for i, cc := range s.clients {
					if cc == c {
						s.clients = append(s.clients[:i], s.clients[i+1:]...)
						break
					}
				}
				s.clientsLock.Unlock()
				return
			}
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins:      []string{s.allowOrigin},
		AllowPrivateNetwork: true,
		AllowCredentials:    true,
	})

	return c.Handler(m)
}

func (s *ApiServer) serve() {
	err := http.Serve(s.listener, s.handler())
	if s.close.Load() {
		return
	} else if err != nil {
		log.WithError(err).Error("failed serving api")
	}
}

// Emit pushes ev to every connected websocket client.
func (s *ApiServer) Emit(ev *ApiEvent) {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()

	log.Tracef("emitting websocket event: %s", ev.Type)

	for _, client := range s.clients {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := wsjson.Write(ctx, client, ev)
		cancel()
		if err != nil {
			log.WithError(err).Error("failed communicating with websocket client")
		}
	}
}

func (s *ApiServer) Receive() <-chan ApiRequest {
	return s.requests
}

func (s *ApiServer) Close() {
	s.close.Store(true)

	s.clientsLock.RLock()
	for _, client := range s.clients {
		_ = client.Close(websocket.StatusGoingAway, "")
	}
	s.clientsLock.RUnlock()

	if s.listener != nil {
		_ = s.listener.Close()
	}
}
