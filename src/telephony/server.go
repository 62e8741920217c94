package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/montroyal-labs/frontdesk/src/frames"
	"github.com/montroyal-labs/frontdesk/src/logger"
)

// ServerConfig holds the telephony HTTP server settings
type ServerConfig struct {
	Port       int
	PublicHost string // Hostname Twilio uses to reach the media-stream WebSocket
	AgentName  string
}

// CallHandler is notified when a media stream starts and when a call's
// status callback reports it finished
type CallHandler interface {
	OnNewCall(leg CallLeg, fromNumber string)
	OnCallEnded(callSID string)
}

// Server terminates Twilio webhooks and Media Streams WebSockets
type Server struct {
	cfg      ServerConfig
	handler  CallHandler
	server   *http.Server
	upgrader websocket.Upgrader
	log      *logger.Logger

	streamMu sync.RWMutex
	streams  map[string]*StreamLeg
}

// NewServer creates the telephony server
func NewServer(cfg ServerConfig, handler CallHandler) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     logger.WithPrefix("TwilioWS"),
		streams: make(map[string]*StreamLeg),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Twilio does not send a browser origin
			},
		},
	}
}

// Routes registers the server's endpoints on a mux
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/incoming-call", s.handleIncomingCall)
	mux.HandleFunc("/media-stream", s.handleMediaStream)
	mux.HandleFunc("/call-status", s.handleCallStatus)
	mux.HandleFunc("/voicemail", s.handleVoicemailFallback)
	mux.HandleFunc("/status", s.handleStatus)
}

// Start begins listening for Twilio traffic
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.Routes(mux)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: mux,
	}

	go func() {
		s.log.Info("Listening on port %d", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes all active streams and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.streamMu.Lock()
	for _, leg := range s.streams {
		leg.Close()
	}
	s.streams = make(map[string]*StreamLeg)
	s.streamMu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleIncomingCall answers Twilio's call webhook with TwiML that greets
// the caller and connects the bidirectional media stream
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	from := r.FormValue("From")
	callSID := r.FormValue("CallSid")
	s.log.Info("Incoming call %s from %s", callSID, from)

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="wss://%s/media-stream">
            <Parameter name="from" value="%s"/>
        </Stream>
    </Connect>
</Response>`, s.cfg.PublicHost, xmlAttrEscape(from))

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, twiml)
}

// handleMediaStream upgrades the Media Streams WebSocket, waits for the
// start event, then hands the leg to the call handler
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade connection: %v", err)
		return
	}
	s.log.Debug("New connection from %s", r.RemoteAddr)

	ser := NewSerializer()
	start, err := awaitStart(conn, ser)
	if err != nil {
		s.log.Warn("Stream closed before start event: %v", err)
		conn.Close()
		return
	}

	leg := newStreamLeg(conn, ser)
	s.streamMu.Lock()
	s.streams[leg.CallSID()] = leg
	s.streamMu.Unlock()
	s.log.Info("Stream started: %s (Call: %s)", leg.StreamSID(), leg.CallSID())

	go func() {
		leg.readLoop()
		s.streamMu.Lock()
		delete(s.streams, leg.CallSID())
		s.streamMu.Unlock()
		s.log.Info("Stream closed: %s", leg.StreamSID())
	}()

	s.handler.OnNewCall(leg, start.FromNumber)
}

// awaitStart reads messages until the start event arrives
func awaitStart(conn *websocket.Conn, ser *Serializer) (*frames.StartFrame, error) {
	deadline := time.Now().Add(10 * time.Second)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		frame, err := ser.Deserialize(message)
		if err != nil || frame == nil {
			continue
		}
		if start, ok := frame.(*frames.StartFrame); ok {
			return start, nil
		}
	}
}

// handleCallStatus receives Twilio call status callbacks
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callSID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")
	s.log.Debug("Status callback for %s: %s", callSID, status)

	switch status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		s.handler.OnCallEnded(callSID)
	}
	w.WriteHeader(http.StatusOK)
}

// handleVoicemailFallback answers with plain TwiML voicemail when the
// media stream cannot be established
func (s *Server) handleVoicemailFallback(w http.ResponseWriter, r *http.Request) {
	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Say>You have reached the office of %s. Please leave a detailed message after the tone and we will call you back within two hours.</Say>
    <Record maxLength="120" action="/call-status"/>
</Response>`, s.cfg.AgentName)

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, twiml)
}

// handleStatus reports service health and active call count
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.streamMu.RLock()
	active := len(s.streams)
	s.streamMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"active_calls": active,
	})
}

// Leg returns the active stream leg for a call, if any
func (s *Server) Leg(callSID string) (*StreamLeg, bool) {
	s.streamMu.RLock()
	defer s.streamMu.RUnlock()
	leg, ok := s.streams[callSID]
	return leg, ok
}

func xmlAttrEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '"':
			out = append(out, "&quot;"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
