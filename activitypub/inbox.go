package activitypub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxCommentRunes = 5000

// Processor applies inbound activities to local state. Policy rejections
// (blocked domain, unknown target, foreign author) are absorbed silently;
// only malformed payloads and storage failures come back as errors.
type Processor struct {
	db       *db.DB
	gate     *TrustGate
	outbox   *Outbox
	resolver InboxResolver
	urls     URLs
}

func NewProcessor(database *db.DB, gate *TrustGate, outbox *Outbox, resolver InboxResolver, urls URLs) *Processor {
	return &Processor{db: database, gate: gate, outbox: outbox, resolver: resolver, urls: urls}
}

func (p *Processor) HandleInboundActivity(ctx context.Context, payload []byte) error {
	activity, err := ParseActivity(payload)
	if err != nil {
		countInbox("unknown", outcomeMalformed)
		log.Printf("Inbox: Rejecting payload: %v", err)
		return err
	}

	kind := activity.Kind()
	logger := log.WithFields(log.Fields{"type": kind, "actor": activity.ActorURI()})

	blocked, err := p.gate.IsActorBlocked(ctx, activity.ActorURI())
	if err != nil {
		countInbox(kind, outcomeFailed)
		return domain.InternalError(fmt.Errorf("block check: %w", err))
	}
	if blocked {
		countInbox(kind, outcomeBlocked)
		logger.Debug("Inbox: Dropping activity from blocked domain")
		return nil
	}

	if p.urls.IsLocal(activity.ActorURI()) {
		countInbox(kind, outcomeIgnored)
		logger.Debug("Inbox: Ignoring activity claiming a local actor")
		return nil
	}

	var handled bool
	switch a := activity.(type) {
	case *Follow:
		handled, err = p.handleFollow(ctx, a)
	case *Undo:
		handled, err = p.handleUndo(ctx, a)
	case *Create:
		handled, err = p.handleCreate(ctx, a)
	case *Delete:
		handled, err = p.handleDelete(ctx, a)
	case *Like:
		logger.Debugf("Inbox: Like of %s acknowledged", a.ObjectID)
		handled = true
	default:
		logger.Debug("Inbox: Unsupported activity type")
	}

	switch {
	case err != nil:
		countInbox(kind, outcomeFailed)
		logger.Printf("Inbox: Failed to process %s: %v", kind, err)
		return domain.InternalError(err)
	case handled:
		countInbox(kind, outcomeProcessed)
	default:
		countInbox(kind, outcomeIgnored)
	}
	return nil
}

func (p *Processor) liveSeriesByActor(ctx context.Context, actorURI string) (*domain.Series, error) {
	if !p.urls.IsLocal(actorURI) {
		return nil, nil
	}
	return liveSeries(p.db.ReadSeriesByActorURI(ctx, actorURI))
}

// handleFollow stores the edge and answers with an Accept. A repeated Follow
// refreshes the edge and is accepted again.
func (p *Processor) handleFollow(ctx context.Context, f *Follow) (bool, error) {
	series, err := p.liveSeriesByActor(ctx, f.Object)
	if err != nil {
		return false, err
	}
	if series == nil {
		log.Printf("Inbox: Follow from %s targets unknown actor %s", f.Actor, f.Object)
		return false, nil
	}

	inbox := p.resolver.ResolveInbox(ctx, f.Actor)
	applied, err := p.db.UpsertFollow(ctx, &domain.SeriesFollow{
		SeriesId:         series.Id,
		FollowerActorURI: f.Actor,
		FollowerInboxURI: inbox,
		FollowURI:        f.ID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to store follow: %w", err)
	}
	if !applied {
		log.Printf("Inbox: Follow %s from %s was already undone", f.ID, f.Actor)
		return false, nil
	}

	if err := p.outbox.EnqueueAccept(ctx, series, f, inbox); err != nil {
		return false, fmt.Errorf("failed to queue Accept: %w", err)
	}
	log.Printf("Inbox: %s now follows %s", f.Actor, series.Slug)
	return true, nil
}

func (p *Processor) handleUndo(ctx context.Context, u *Undo) (bool, error) {
	if u.ObjectType != "" && u.ObjectType != "Follow" {
		return false, nil
	}
	// an embedded Follow must belong to whoever undoes it
	if u.ObjectActor != "" && u.ObjectActor != u.Actor {
		log.Printf("Inbox: Undo by %s names a Follow by %s, ignoring", u.Actor, u.ObjectActor)
		return false, nil
	}

	var seriesId *uuid.UUID
	if u.ObjectTarget != "" {
		series, err := p.liveSeriesByActor(ctx, u.ObjectTarget)
		if err != nil {
			return false, err
		}
		if series != nil {
			seriesId = &series.Id
		}
	}
	if seriesId == nil && u.ObjectID == "" {
		return false, nil
	}

	removed, err := p.db.UndoFollow(ctx, u.Actor, u.ObjectID, seriesId)
	if err != nil {
		return false, fmt.Errorf("failed to undo follow: %w", err)
	}
	if removed > 0 {
		log.Printf("Inbox: Removed follow by %s", u.Actor)
	}
	return true, nil
}

// handleCreate ingests replies to local chapters as remote comments.
func (p *Processor) handleCreate(ctx context.Context, c *Create) (bool, error) {
	if c.Note == nil {
		return false, nil
	}
	// a note attributed to someone else cannot be created on their behalf
	if c.Note.AttributedTo != "" && c.Note.AttributedTo != c.Actor {
		log.Printf("Inbox: Create by %s carries a note attributed to %s, ignoring", c.Actor, c.Note.AttributedTo)
		return false, nil
	}

	chapter, err := p.replyTarget(ctx, c.Note.InReplyTo)
	if err != nil || chapter == nil {
		return false, err
	}

	content := util.StripTags(c.Note.Content)
	if content == "" {
		return false, nil
	}
	if utf8.RuneCountInString(content) > maxCommentRunes {
		content = string([]rune(content)[:maxCommentRunes])
	}

	comment := &domain.Comment{
		ChapterId:      chapter.Id,
		AuthorActorURI: c.Actor,
		AuthorUsername: remoteHandle(c.Actor),
		Content:        content,
		ActivityURI:    c.Note.ID,
		IsLocal:        false,
	}
	if !c.Note.Published.IsZero() {
		comment.CreatedAt = c.Note.Published.UTC()
	}

	inserted, err := p.db.CreateComment(ctx, comment)
	if err != nil {
		return false, fmt.Errorf("failed to store comment: %w", err)
	}
	if inserted {
		log.Printf("Inbox: Stored reply %s on chapter %s", c.Note.ID, chapter.Id)
	}
	return inserted, nil
}

// replyTarget finds the first live local chapter among the reply targets.
func (p *Processor) replyTarget(ctx context.Context, targets []string) (*domain.Chapter, error) {
	for _, target := range targets {
		if !p.urls.IsLocal(target) {
			continue
		}
		id, err := uuid.Parse(util.ExtractUUID(target))
		if err != nil {
			continue
		}
		chapter, err := p.db.ReadChapterById(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if chapter.IsDeleted {
			continue
		}
		series, err := liveSeries(p.db.ReadSeriesById(ctx, chapter.SeriesId))
		if err != nil {
			return nil, err
		}
		if series == nil {
			continue
		}
		return chapter, nil
	}
	return nil, nil
}

func (p *Processor) handleDelete(ctx context.Context, d *Delete) (bool, error) {
	if d.ObjectID == d.Actor {
		edges, err := p.db.DeleteFollowsByActor(ctx, d.Actor)
		if err != nil {
			return false, fmt.Errorf("failed to remove follows: %w", err)
		}
		comments, err := p.db.SoftDeleteCommentsByAuthor(ctx, d.Actor)
		if err != nil {
			return false, fmt.Errorf("failed to remove comments: %w", err)
		}
		log.Printf("Inbox: Actor %s deleted, removed %d follows and %d comments", d.Actor, edges, comments)
		return true, nil
	}

	deleted, err := p.db.SoftDeleteRemoteComment(ctx, d.ObjectID, d.Actor)
	if err != nil {
		return false, fmt.Errorf("failed to delete comment: %w", err)
	}
	if deleted {
		log.Printf("Inbox: Deleted reply %s", d.ObjectID)
	}
	return deleted, nil
}

// remoteHandle renders an actor URI as user@host.
func remoteHandle(actorURI string) string {
	username := extractUsername(actorURI)
	host := util.DomainFromURI(actorURI)
	if username == "" || host == "" {
		return actorURI
	}
	return strings.ToLower(username) + "@" + host
}
