package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/whisperlive-lab/internal/audio"
	"github.com/whisperlive-lab/internal/config"
	"github.com/whisperlive-lab/internal/logging"
	"github.com/whisperlive-lab/internal/metrics"
	"github.com/whisperlive-lab/internal/readiness"
	"github.com/whisperlive-lab/internal/sidecar"
	"github.com/whisperlive-lab/internal/stream"
)

// Service exposes the streaming client as MCP tools.
type Service struct {
	Config   config.Config
	Metrics  *metrics.Metrics
	Sidecars *sidecar.Manager
	Version  string
}

// TranscribeArgs are the transcribe_audio tool inputs. Either Path or
// SilenceSeconds selects the audio.
type TranscribeArgs struct {
	Path           string  `json:"path,omitempty" jsonschema:"audio file to stream: .wav or raw float32 little-endian 16 kHz mono"`
	SilenceSeconds float64 `json:"silence_seconds,omitempty" jsonschema:"stream this many seconds of silence instead of a file"`
	Endpoint       string  `json:"endpoint,omitempty" jsonschema:"override the WhisperLive websocket endpoint"`
	Language       string  `json:"language,omitempty" jsonschema:"language code or auto"`
}

// ProbeArgs are the probe_endpoint tool inputs.
type ProbeArgs struct {
	Endpoint string `json:"endpoint,omitempty" jsonschema:"endpoint to probe; defaults to the configured one"`
}

// TranscriptArgs are the get_transcript tool inputs.
type TranscriptArgs struct {
	CorrelationID string `json:"correlation_id" jsonschema:"correlation id returned by transcribe_audio"`
}

// NewServer builds an MCP server with the service's tools registered.
func (s *Service) NewServer() *sdk.Server {
	version := s.Version
	if version == "" {
		version = "dev"
	}
	server := sdk.NewServer(&sdk.Implementation{Name: "whisperlive-lab", Version: version}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        "transcribe_audio",
		Description: "Stream audio to a WhisperLive server and return the transcript with session statistics",
	}, s.transcribe)
	sdk.AddTool(server, &sdk.Tool{
		Name:        "probe_endpoint",
		Description: "Check whether a WhisperLive endpoint accepts TCP connections",
	}, s.probe)
	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_transcript",
		Description: "Return a previously written transcript document by correlation id",
	}, s.transcript)
	return server
}

func (s *Service) transcribe(ctx context.Context, req *sdk.CallToolRequest, args TranscribeArgs) (*sdk.CallToolResult, any, error) {
	var (
		buf []byte
		err error
	)
	switch {
	case strings.TrimSpace(args.Path) != "":
		buf, err = audio.LoadFile(args.Path)
		if err != nil {
			return errorResult(fmt.Errorf("load audio: %w", err)), nil, nil
		}
	case args.SilenceSeconds > 0:
		buf = audio.Silence(time.Duration(args.SilenceSeconds * float64(time.Second)))
	default:
		return errorResult(fmt.Errorf("either path or silence_seconds is required")), nil, nil
	}

	endpoint := s.Config.Endpoint
	if args.Endpoint != "" {
		endpoint = args.Endpoint
	}
	lang := s.Config.Session.Language
	if args.Language != "" {
		lang = args.Language
	}
	cfg := stream.NewSessionConfig("", lang, stream.Task(s.Config.Session.Task), s.Config.Session.Model, s.Config.Session.UseVADValue())

	s.Metrics.SessionStarted()
	defer s.Metrics.SessionEnded()
	client := &stream.Client{
		Endpoint: endpoint,
		Options:  stream.NewOptions(s.Config.Stream),
		Recorder: s.Metrics,
	}
	summary := stream.Summarize(client.Transcribe(ctx, cfg, buf))
	summary.Log(ctx)

	if _, err := s.Sidecars.Write(sidecar.FromSummary(summary)); err != nil {
		logging.Warnw("mcp: sidecar write failed", "correlation_id", summary.CorrelationID, "err", err)
		summary.Warnings = append(summary.Warnings, err.Error())
	}

	out, err := json.Marshal(summary)
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{
		IsError: summary.Outcome == stream.OutcomeFailed,
		Content: []sdk.Content{&sdk.TextContent{Text: string(out)}},
	}, nil, nil
}

func (s *Service) probe(ctx context.Context, req *sdk.CallToolRequest, args ProbeArgs) (*sdk.CallToolResult, any, error) {
	endpoint := s.Config.Endpoint
	if args.Endpoint != "" {
		endpoint = args.Endpoint
	}
	st := readiness.Probe(ctx, endpoint)
	s.Metrics.RecordProbe(st.Ready)
	out, err := json.Marshal(st)
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: string(out)}}}, nil, nil
}

func (s *Service) transcript(ctx context.Context, req *sdk.CallToolRequest, args TranscriptArgs) (*sdk.CallToolResult, any, error) {
	cid := strings.TrimSpace(args.CorrelationID)
	if cid == "" {
		return errorResult(fmt.Errorf("correlation_id is required")), nil, nil
	}
	if s.Sidecars == nil {
		return errorResult(fmt.Errorf("transcript output is not configured")), nil, nil
	}
	path := s.Sidecars.FindByCID(cid)
	if path == "" {
		return errorResult(fmt.Errorf("no transcript for correlation_id %s", cid)), nil, nil
	}
	doc, err := sidecar.Read(path)
	if err != nil {
		return errorResult(err), nil, nil
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: string(out)}}}, nil, nil
}

func errorResult(err error) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
	}
}

// WebSocketHandler accepts MCP clients over websocket and serves each on
// its own session of server.
func WebSocketHandler(server *sdk.Server) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: websocket upgrade failed", "err", err)
			return
		}
		go func() {
			session, err := server.Connect(context.Background(), NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Errorw("mcp: server connect failed", "err", err)
				_ = conn.Close()
				return
			}
			defer session.Close()
			if err := session.Wait(); err != nil {
				logging.Debugw("mcp: session ended", "err", err)
				return
			}
			logging.Debugw("mcp: session ended")
		}()
	})
}
