package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/adapter/http/handler/dto"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/models"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/internal/domain/types"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger"
	wrap "github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/logger/wrapper"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/uuid"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/validator"
	"github.com/nxtbus/nxtbus-fleet-management-sub000/pkg/wshub"
)

type TrackingWS struct {
	service  TrackingHubService
	auth     AuthService
	upgrader websocket.Upgrader
	l        logger.Logger
}

type TrackingHubService interface {
	PlaceConnection(conn *wshub.Conn, user *models.User) error
	RemoveConnection(entityID uuid.UUID)
	Ingest(ctx context.Context, fix models.PositionFix) (models.TripState, error)
}

type AuthService interface {
	RoleCheck(ctx context.Context, token string) (*models.User, error)
}

func NewTrackingWS(service TrackingHubService, auth AuthService, l logger.Logger) *TrackingWS {
	return &TrackingWS{
		service: service,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		l: l,
	}
}

// HandleVehicleWS is the vehicle's push channel. The socket is upgraded
// before authentication so a rejected client receives a typed close frame
// ("no-token" / "invalid-token") instead of a bare HTTP error it may not
// surface. Every inbound message is one position fix.
func (h *TrackingWS) HandleVehicleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "vehicle_ws")

	vehicleID, err := uuid.Parse(r.PathValue("vehicle_id"))
	if err != nil {
		h.l.Warn(ctx, "invalid vehicle uuid format")
		errorResponse(w, http.StatusBadRequest, "invalid vehicle uuid format")
		return
	}
	ctx = wrap.WithVehicleID(ctx, vehicleID.String())

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to upgrade connection", err)
		return
	}

	conn := wshub.NewConn(context.WithoutCancel(ctx), vehicleID, wsConn)

	user, closeReason := h.authenticate(ctx, r)
	if user == nil {
		h.l.Warn(ctx, "rejected vehicle connection", "reason", closeReason.String())
		_ = conn.CloseWithReason(closeReason.String())
		return
	}

	if user.Role != types.RoleVehicle && user.Role != types.RoleAdmin {
		h.l.Warn(ctx, "rejected vehicle connection", "reason", "wrong role", "role", user.Role)
		_ = conn.CloseWithReason(types.CloseInvalidToken.String())
		return
	}

	if err := h.service.PlaceConnection(conn, &models.User{ID: vehicleID, Role: user.Role, OwnerID: user.OwnerID}); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to register connection", err)
		_ = conn.Close()
		return
	}
	defer h.service.RemoveConnection(vehicleID)

	h.l.Info(ctx, "vehicle connected")

	err = conn.Listen(func(data []byte) error {
		var req dto.PositionFixReq
		if err := json.Unmarshal(data, &req); err != nil {
			return sendError(conn, "badly-formed fix payload")
		}

		tripID, ok := extractTripID(data)
		if !ok {
			return sendError(conn, "fix must carry trip_id")
		}

		v := validator.New()
		req.Validate(v)
		if !v.Valid() {
			return sendValidationError(conn, v.Errors)
		}

		if _, err := h.service.Ingest(ctx, req.ToModel(tripID)); err != nil {
			// stale and ended-trip fixes are rejected but the socket stays up
			return sendError(conn, err.Error())
		}
		return nil
	})
	if err != nil {
		h.l.Debug(ctx, "vehicle connection closed", "err", err.Error())
	}
}

// HandleFleetWS serves dashboard and passenger subscriptions. The client
// only listens; room placement is derived from the token's role.
func (h *TrackingWS) HandleFleetWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "fleet_ws")

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to upgrade connection", err)
		return
	}

	user, closeReason := h.authenticate(ctx, r)
	if user == nil {
		conn := wshub.NewConn(context.WithoutCancel(ctx), uuid.New(), wsConn)
		h.l.Warn(ctx, "rejected fleet connection", "reason", closeReason.String())
		_ = conn.CloseWithReason(closeReason.String())
		return
	}

	conn := wshub.NewConn(context.WithoutCancel(ctx), user.ID, wsConn)
	if err := h.service.PlaceConnection(conn, user); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to register connection", err)
		_ = conn.Close()
		return
	}
	defer h.service.RemoveConnection(user.ID)

	h.l.Info(wrap.WithUserID(ctx, user.ID.String()), "fleet subscriber connected", "role", user.Role)

	// inbound messages are ignored; the loop exists to detect the close
	err = conn.Listen(func([]byte) error { return nil })
	if err != nil {
		h.l.Debug(ctx, "fleet connection closed", "err", err.Error())
	}
}

// authenticate resolves the connecting identity from the query token or the
// Authorization header. A nil user means rejection with the paired reason.
func (h *TrackingWS) authenticate(ctx context.Context, r *http.Request) (*models.User, types.CloseReason) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = after
		}
	}
	if token == "" {
		return nil, types.CloseNoToken
	}

	user, err := h.auth.RoleCheck(ctx, token)
	if err != nil || user == nil {
		return nil, types.CloseInvalidToken
	}

	return user, ""
}

// extractTripID pulls trip_id out of the raw fix payload. The WS channel
// carries it inline since there is no path parameter to take it from.
func extractTripID(data []byte) (uuid.UUID, bool) {
	var probe struct {
		TripID uuid.UUID `json:"trip_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || (probe.TripID == uuid.UUID{}) {
		return uuid.UUID{}, false
	}
	return probe.TripID, true
}

func sendError(conn *wshub.Conn, message any) error {
	return conn.Send(map[string]any{"error": message})
}

func sendValidationError(conn *wshub.Conn, errors map[string]string) error {
	return sendError(conn, errors)
}
