package server

import (
	"net"

	"tcpms/application"
)

// tcpListener adapts *net.TCPListener to application.TcpListener, grounded
// on the teacher's application/listeners.TcpListener adapter shape.
type tcpListener struct {
	ln net.Listener
}

// Listen opens a TCP listener on addr ready to be driven by a Server.
func Listen(addr string) (application.TcpListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln}, nil
}

func (l *tcpListener) Accept() (application.Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	// net.Conn's method set is a superset of application.Transport's, so
	// this assertion always succeeds for any real listener implementation.
	return conn.(application.Transport), nil
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}
