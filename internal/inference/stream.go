package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"vidsub/internal/workerproto"
)

// streamPort speaks the worker protocol as NDJSON over a byte stream.
type streamPort struct {
	conn io.ReadWriteCloser
	enc  *workerproto.Encoder
	out  chan workerproto.Response
	errs chan error
	done chan struct{}
	once sync.Once
	wait func() error
}

// NewStreamPort returns a Port over conn. Responses are decoded until conn
// reaches EOF or is closed by Terminate.
func NewStreamPort(conn io.ReadWriteCloser) Port {
	p := &streamPort{
		conn: conn,
		enc:  workerproto.NewEncoder(conn),
		out:  make(chan workerproto.Response, 64),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *streamPort) readLoop() {
	defer close(p.out)
	dec := workerproto.NewDecoder(p.conn)
	for {
		resp, err := dec.DecodeResponse()
		if err != nil {
			select {
			case <-p.done:
			default:
				if !errors.Is(err, io.EOF) {
					p.errs <- err
				}
			}
			return
		}
		select {
		case p.out <- resp:
		case <-p.done:
			return
		}
	}
}

func (p *streamPort) Post(req workerproto.Request) error {
	select {
	case <-p.done:
		return ErrWorkerUnavailable
	default:
	}
	return p.enc.Encode(req)
}

func (p *streamPort) Messages() <-chan workerproto.Response { return p.out }

func (p *streamPort) Errors() <-chan error { return p.errs }

func (p *streamPort) Terminate() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
		if p.wait != nil {
			_ = p.wait()
		}
	})
}

type commandConn struct {
	io.Reader
	io.WriteCloser
	stdout io.Closer
}

func (c commandConn) Close() error {
	err := c.WriteCloser.Close()
	if cerr := c.stdout.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewCommandPort starts cmd and speaks the worker protocol over its stdin
// and stdout. The command is expected to run ServeStream.
func NewCommandPort(cmd *exec.Cmd) (Port, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", cmd.Path, err)
	}
	p := NewStreamPort(commandConn{Reader: stdout, WriteCloser: stdin, stdout: stdout}).(*streamPort)
	p.wait = cmd.Wait
	return p, nil
}

// ServeStream runs capability as a worker that reads NDJSON requests from r
// and writes responses to w. It returns when r is exhausted or ctx is
// cancelled, after every run has stopped. A malformed request stream ends
// the worker with an uncorrelated error response.
func ServeStream(ctx context.Context, r io.Reader, w io.Writer, capability Capability, opts ...WorkerOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan workerproto.Request)
	out := make(chan workerproto.Response, 64)
	readErr := make(chan error, 1)

	go func() {
		defer close(in)
		dec := workerproto.NewDecoder(r)
		for {
			req, err := dec.DecodeRequest()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case in <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	enc := workerproto.NewEncoder(w)
	writeDone := make(chan error, 1)
	go func() {
		var firstErr error
		for resp := range out {
			if firstErr != nil {
				continue
			}
			if err := enc.Encode(resp); err != nil {
				firstErr = err
				cancel()
			}
		}
		writeDone <- firstErr
	}()

	newWorker(capability, out, opts...).serve(ctx, in)
	if err := <-writeDone; err != nil {
		return err
	}
	select {
	case err := <-readErr:
		// Uncorrelated error: the client fails every pending request with it.
		_ = enc.Encode(workerproto.Failure("", "worker stopped reading requests: "+err.Error()))
		return err
	default:
		return nil
	}
}
