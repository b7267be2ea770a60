package activitypub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedActivity is returned for payloads that cannot be interpreted at
// all. Anything that parses but is not acted on is not an error.
var ErrMalformedActivity = errors.New("malformed activity")

// Activity is one of Follow, Undo, Create, Delete, Like or Unsupported.
type Activity interface {
	ActivityID() string
	ActorURI() string
	Kind() string
	isActivity()
}

type envelope struct {
	ID    string
	Actor string
}

func (e envelope) ActivityID() string { return e.ID }
func (e envelope) ActorURI() string   { return e.Actor }
func (envelope) isActivity()          {}

type Follow struct {
	envelope
	Object string // followed actor
}

// Undo carries whatever the sender told us about the undone activity. Only
// ObjectID is guaranteed when the object was sent as a bare reference.
type Undo struct {
	envelope
	ObjectID     string
	ObjectType   string
	ObjectActor  string
	ObjectTarget string
}

type Create struct {
	envelope
	ObjectID string
	Note     *Note // nil when the created object is not a Note
}

type Note struct {
	ID           string
	AttributedTo string
	Content      string
	InReplyTo    []string
	Published    time.Time
}

type Delete struct {
	envelope
	ObjectID string
}

type Like struct {
	envelope
	ObjectID string
}

type Unsupported struct {
	envelope
	Type string
}

func (Follow) Kind() string        { return "Follow" }
func (Undo) Kind() string          { return "Undo" }
func (Create) Kind() string        { return "Create" }
func (Delete) Kind() string        { return "Delete" }
func (Like) Kind() string          { return "Like" }
func (u Unsupported) Kind() string { return u.Type }

type rawActivity struct {
	ID     string          `json:"id"`
	Type   json.RawMessage `json:"type"`
	Actor  json.RawMessage `json:"actor"`
	Object json.RawMessage `json:"object"`
}

type rawObject struct {
	ID           string          `json:"id"`
	Type         json.RawMessage `json:"type"`
	Actor        json.RawMessage `json:"actor"`
	Object       json.RawMessage `json:"object"`
	AttributedTo json.RawMessage `json:"attributedTo"`
	Content      string          `json:"content"`
	InReplyTo    json.RawMessage `json:"inReplyTo"`
	Published    string          `json:"published"`
}

// ParseActivity decodes an inbound payload. Object, actor and inReplyTo may
// each be a bare URI, an embedded object or an array of either.
func ParseActivity(payload []byte) (Activity, error) {
	var raw rawActivity
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedActivity, err)
	}

	typ, err := typeOf(raw.Type)
	if err != nil || typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedActivity)
	}
	actor, err := refID(raw.Actor)
	if err != nil || actor == "" {
		return nil, fmt.Errorf("%w: missing actor", ErrMalformedActivity)
	}
	env := envelope{ID: raw.ID, Actor: actor}

	switch typ {
	case "Follow":
		object, err := refID(raw.Object)
		if err != nil || object == "" {
			return nil, fmt.Errorf("%w: Follow without object", ErrMalformedActivity)
		}
		return &Follow{envelope: env, Object: object}, nil

	case "Undo":
		obj, err := parseObject(raw.Object)
		if err != nil || obj.ID == "" && len(obj.Type) == 0 {
			return nil, fmt.Errorf("%w: Undo without object", ErrMalformedActivity)
		}
		undo := &Undo{envelope: env, ObjectID: obj.ID}
		undo.ObjectType, _ = typeOf(obj.Type)
		undo.ObjectActor, _ = refID(obj.Actor)
		undo.ObjectTarget, _ = refID(obj.Object)
		return undo, nil

	case "Create":
		obj, err := parseObject(raw.Object)
		if err != nil || obj.ID == "" {
			return nil, fmt.Errorf("%w: Create without object id", ErrMalformedActivity)
		}
		create := &Create{envelope: env, ObjectID: obj.ID}
		if objType, _ := typeOf(obj.Type); objType == "Note" {
			create.Note = noteFrom(obj)
		}
		return create, nil

	case "Delete":
		object, err := refID(raw.Object)
		if err != nil || object == "" {
			return nil, fmt.Errorf("%w: Delete without object", ErrMalformedActivity)
		}
		return &Delete{envelope: env, ObjectID: object}, nil

	case "Like":
		object, _ := refID(raw.Object)
		return &Like{envelope: env, ObjectID: object}, nil

	default:
		return &Unsupported{envelope: env, Type: typ}, nil
	}
}

func noteFrom(obj rawObject) *Note {
	n := &Note{ID: obj.ID, Content: obj.Content}
	n.AttributedTo, _ = refID(obj.AttributedTo)
	n.InReplyTo, _ = refIDs(obj.InReplyTo)
	if obj.Published != "" {
		if t, err := time.Parse(time.RFC3339, obj.Published); err == nil {
			n.Published = t
		}
	}
	return n
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseObject accepts a bare URI, an embedded object or an array, in which
// case the first element wins.
func parseObject(raw json.RawMessage) (rawObject, error) {
	var obj rawObject
	if isNull(raw) {
		return obj, nil
	}
	switch bytes.TrimSpace(raw)[0] {
	case '"':
		err := json.Unmarshal(raw, &obj.ID)
		return obj, err
	case '{':
		err := json.Unmarshal(raw, &obj)
		return obj, err
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return obj, err
		}
		if len(items) == 0 {
			return obj, nil
		}
		return parseObject(items[0])
	default:
		return obj, fmt.Errorf("unexpected object encoding")
	}
}

func refID(raw json.RawMessage) (string, error) {
	obj, err := parseObject(raw)
	return strings.TrimSpace(obj.ID), err
}

func refIDs(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	if bytes.TrimSpace(raw)[0] != '[' {
		id, err := refID(raw)
		if err != nil || id == "" {
			return nil, err
		}
		return []string{id}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	var ids []string
	for _, item := range items {
		if id, err := refID(item); err == nil && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// typeOf reads "type", which JSON-LD allows to be a string or a list.
func typeOf(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return "", err
	}
	if len(many) == 0 {
		return "", nil
	}
	return many[0], nil
}
