// Package mcpserver exposes the health engine to AI agents over the
// Model Context Protocol: line-delimited JSON-RPC 2.0 on stdin/stdout
// with tools for checking, suggesting, and fixing. Tool failures are
// reported as tool results, not protocol errors, so agents can read
// them.
package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

const maxLineBytes = 4 << 20

// Handler runs one tool call. The returned string is the tool's text
// content; a non-nil error becomes an isError result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

type tool struct {
	def     Tool
	handler Handler
}

// Server speaks the protocol on in/out. Messages are processed
// strictly in arrival order.
type Server struct {
	info  serverInfo
	tools []tool

	in  io.Reader
	out io.Writer
	mu  sync.Mutex

	ready    bool
	exit     chan struct{}
	exitOnce sync.Once
}

// New builds a server named pg-health carrying the three standard
// tools wired to deps.
func New(version string, deps Deps) *Server {
	s := &Server{
		info: serverInfo{Name: "pg-health", Version: version},
		in:   os.Stdin,
		out:  os.Stdout,
		exit: make(chan struct{}),
	}
	s.register(checkTool(), checkHandler(deps.Check))
	s.register(suggestTool(), suggestHandler(deps.Suggest))
	s.register(fixTool(), fixHandler(deps.Fix))
	return s
}

func (s *Server) register(def Tool, h Handler) {
	s.tools = append(s.tools, tool{def: def, handler: h})
}

func (s *Server) tool(name string) *tool {
	for i := range s.tools {
		if s.tools[i].def.Name == name {
			return &s.tools[i]
		}
	}
	return nil
}

// Run reads messages until stdin closes, the client sends exit, or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Str("name", s.info.Name).Str("version", s.info.Version).Msg("mcp server listening on stdio")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exit:
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			log.Debug().Msg("stdin closed, mcp server stopping")
			return nil
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.dispatch(ctx, line)
	}
}

func (s *Server) dispatch(ctx context.Context, line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.sendError(nil, codeParseError, "invalid JSON")
		return
	}
	if req.Method == "" {
		s.sendError(req.ID, codeInvalidRequest, "missing method")
		return
	}

	log.Debug().Str("method", req.Method).Msg("mcp request")

	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// acknowledgement notification, nothing to send back
	case "tools/list":
		s.handleListTools(req)
	case "tools/call":
		s.handleCallTool(ctx, req)
	case "shutdown":
		s.ready = false
		s.sendResult(req.ID, nil)
	case "exit":
		s.exitOnce.Do(func() { close(s.exit) })
	default:
		if req.ID == nil {
			return // unknown notification
		}
		s.sendError(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req request) {
	if s.ready {
		s.sendError(req.ID, codeInvalidRequest, "server already initialized")
		return
	}
	s.ready = true
	s.sendResult(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      s.info,
	})
}

func (s *Server) handleListTools(req request) {
	if !s.ready {
		s.sendError(req.ID, codeInvalidRequest, "server not initialized")
		return
	}
	defs := make([]Tool, len(s.tools))
	for i, t := range s.tools {
		defs[i] = t.def
	}
	s.sendResult(req.ID, listToolsResult{Tools: defs})
}

func (s *Server) handleCallTool(ctx context.Context, req request) {
	if !s.ready {
		s.sendError(req.ID, codeInvalidRequest, "server not initialized")
		return
	}

	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		s.sendError(req.ID, codeInvalidParams, "invalid tool call parameters")
		return
	}

	t := s.tool(params.Name)
	if t == nil {
		s.sendError(req.ID, codeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name))
		return
	}
	for _, key := range t.def.InputSchema.Required {
		if v, ok := params.Arguments[key].(string); !ok || v == "" {
			s.sendError(req.ID, codeInvalidParams, fmt.Sprintf("missing required argument %q", key))
			return
		}
	}

	text, err := t.handler(ctx, params.Arguments)
	if err != nil {
		log.Warn().Str("tool", params.Name).Err(err).Msg("tool call failed")
		s.sendResult(req.ID, callResult{
			Content: []toolContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
		return
	}
	s.sendResult(req.ID, callResult{Content: []toolContent{{Type: "text", Text: text}}})
}

func (s *Server) sendResult(id *json.RawMessage, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		s.sendError(id, codeInternalError, "encoding result")
		return
	}
	s.write(response{JSONRPC: "2.0", ID: id, Result: data})
}

func (s *Server) sendError(id *json.RawMessage, code int, message string) {
	s.write(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) write(msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("encoding jsonrpc message")
		return
	}
	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		log.Error().Err(err).Msg("writing jsonrpc message")
	}
}
