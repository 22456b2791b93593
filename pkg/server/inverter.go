package server

import (
	"net/http"

	"github.com/pvledger/pvledger/pkg/types"
)

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rt, err := s.inverter.Realtime(ctx)
	if err != nil {
		writeUpstreamError(ctx, w, "failed to get realtime power", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, rt)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	devices, err := s.inverter.ListDevices(ctx)
	if err != nil {
		writeUpstreamError(ctx, w, "failed to list devices", err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=60")
	if devices == nil {
		devices = []types.Device{}
	}
	writeJSON(w, struct {
		Devices []types.Device `json:"devices"`
	}{Devices: devices})
}
