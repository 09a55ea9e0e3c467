package models

// InteractionType is the control message kind sent on the interaction channel.
type InteractionType int32

const (
	InteractionPing InteractionType = iota
	InteractionClose
	InteractionMoveTo
	InteractionFollow
	InteractionAttach
	InteractionDetach
	InteractionInfo
	InteractionDropCytokine
)

func (t InteractionType) String() string {
	switch t {
	case InteractionPing:
		return "PING"
	case InteractionClose:
		return "CLOSE"
	case InteractionMoveTo:
		return "MOVE_TO"
	case InteractionFollow:
		return "FOLLOW"
	case InteractionAttach:
		return "ATTACH"
	case InteractionDetach:
		return "DETACH"
	case InteractionInfo:
		return "INFO"
	case InteractionDropCytokine:
		return "DROP_CYTOKINE"
	default:
		return "UNKNOWN"
	}
}

// ParseInteractionType maps the operator-facing action names onto types.
func ParseInteractionType(s string) (InteractionType, bool) {
	switch s {
	case "ping", "PING":
		return InteractionPing, true
	case "close", "CLOSE":
		return InteractionClose, true
	case "move-to", "MOVE_TO":
		return InteractionMoveTo, true
	case "follow", "FOLLOW":
		return InteractionFollow, true
	case "attach", "ATTACH":
		return InteractionAttach, true
	case "detach", "DETACH":
		return InteractionDetach, true
	case "info", "INFO":
		return InteractionInfo, true
	case "drop-signal", "DROP_CYTOKINE":
		return InteractionDropCytokine, true
	}
	return 0, false
}

// InteractionRequest is an outbound control message.
type InteractionRequest struct {
	SessionToken string
	Type         InteractionType
	Position     *Position
	TargetCell   string
	CytokineType CytokineType
}

// ResponseStatus is the outcome of one interaction request.
type ResponseStatus int32

const (
	ResponseSuccess ResponseStatus = iota
	ResponseFailure
)

func (s ResponseStatus) String() string {
	if s == ResponseFailure {
		return "FAILURE"
	}
	return "SUCCESS"
}

// InteractionResponse is an inbound interaction result.
type InteractionResponse struct {
	Status             ResponseStatus `json:"status"`
	ErrorMessage       string         `json:"errorMessage,omitempty"`
	AttachedTo         string         `json:"attachedTo,omitempty"`
	TargetCellStatus   *CellStatus    `json:"targetCellStatus,omitempty"`
	AttachedCellStatus *CellStatus    `json:"attachedCellStatus,omitempty"`
}

// LoginRequest is the body POSTed to a node's interaction login endpoint.
type LoginRequest struct {
	SessionToken string
}

// LoginResponse is the node's answer to a login request.
type LoginResponse struct {
	SessionToken string
	Expiry       int32 // unix seconds
	RenderID     string
}

// CellStatus describes a cell the operator's nanobot targets or is attached to.
type CellStatus struct {
	Timestamp     int64              `json:"timestamp"`
	CellType      CellType           `json:"cellType"`
	Name          string             `json:"name"`
	RenderID      string             `json:"renderId"`
	Damage        int32              `json:"damage"`
	SpawnTime     int64              `json:"spawnTime"`
	ViralLoad     int32              `json:"viralLoad"`
	TransportPath []string           `json:"transportPath,omitempty"`
	WantPath      []string           `json:"wantPath,omitempty"`
	Proteins      []uint32           `json:"proteins,omitempty"`
	Presented     []uint32           `json:"presented,omitempty"`
	CellActions   []CellActionStatus `json:"cellActions,omitempty"`
}
