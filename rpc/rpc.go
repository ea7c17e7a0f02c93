package rpc

import (
	"errors"
	"net"
	"net/rpc"
	"sync"

	"github.com/wfunc/soccerserver/logger"
)

// Server manages the RPC listener.
type Server struct {
	rpc      *rpc.Server
	listener net.Listener
	address  string
	mutex    sync.Mutex
}

// NewServer creates a new RPC server. Services are added with Register before Start.
func NewServer(addr string) *Server {
	return &Server{
		rpc:     rpc.NewServer(),
		address: addr,
	}
}

// Register publishes the exported methods of rcvr under name.
func (s *Server) Register(name string, rcvr interface{}) error {
	return s.rpc.RegisterName(name, rcvr)
}

// Listen binds the address; Start then serves on it.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	s.listener = listener
	s.mutex.Unlock()
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start begins accepting RPC connections. It returns when the listener is closed.
func (s *Server) Start() {
	s.mutex.Lock()
	listener := s.listener
	s.mutex.Unlock()
	if listener == nil {
		logger.Log.Error("RPC server started without a listener")
		return
	}

	logger.Log.Infof("RPC server listening on %s", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// ServeConn serves a single connection, blocking until the client hangs up.
func (s *Server) ServeConn(conn net.Conn) {
	s.rpc.ServeConn(conn)
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
		s.listener = nil
	}
}
