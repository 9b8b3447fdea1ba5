// Package sendtransport implements C7: the one-method adapter between the
// send pipeline (internal/domain/sendpipeline) and gotd/td's tg.Client RPCs.
// It owns the only import of tg.* on the send path, and translates gotd's
// errors into the sendpipeline error vocabulary the pipeline's retry
// classifier understands.
//
// Grounded on internal/updates/auth.go's sendReply (MessagesSendMessage
// call shape, InputReplyToMessage, RandomID via apptime.Now) and the flood
// wait / rpc error extraction idiom in
// internal/adapters/telegram/notifier/client_wait_extractor.go and
// client_sender.go.
package sendtransport

import (
	"context"
	"fmt"

	"telegram-userbot/internal/domain/dialogid"
	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/domain/sendpipeline"
	"telegram-userbot/internal/infra/apptime"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"golang.org/x/time/rate"
)

// PeerResolver resolves a folded ChatId back into the tg.InputPeerClass
// needed to address an RPC. Satisfied by the teacher's peer cache
// (internal/infra/telegram/cache.PeerCache) via a thin adapter.
type PeerResolver interface {
	ResolveInputPeer(kind dialogid.PeerKind, rawID int64) (tg.InputPeerClass, error)
}

// defaultRPCRateLimit and defaultRPCBurst bound how fast this transport
// issues send/edit/delete RPCs on its own initiative, ahead of any server
// FLOOD_WAIT response. Telegram's own limits are stricter for some methods
// and looser for others; these are a conservative floor, not a substitute
// for wrapError's reactive FloodWaitError handling.
const (
	defaultRPCRateLimit rate.Limit = 25
	defaultRPCBurst                = 5
)

// Transport implements sendpipeline.Transport against a live tg.Client.
type Transport struct {
	api     *tg.Client
	peers   PeerResolver
	limiter *rate.Limiter
}

// New wires a tg.Client and a peer resolver into a sendpipeline.Transport,
// paced by a token-bucket limiter at the package defaults.
func New(api *tg.Client, peers PeerResolver) *Transport {
	return &Transport{api: api, peers: peers, limiter: rate.NewLimiter(defaultRPCRateLimit, defaultRPCBurst)}
}

// Execute implements sendpipeline.Transport.
func (t *Transport) Execute(ctx context.Context, request sendpipeline.SendRequest) (sendpipeline.SendResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return sendpipeline.SendResult{}, err
	}

	kind, rawID := dialogid.ToRawPeer(int64(request.PeerID))
	peer, err := t.peers.ResolveInputPeer(kind, rawID)
	if err != nil {
		return sendpipeline.SendResult{}, wrapError(err)
	}

	switch request.Kind {
	case sendpipeline.KindSendText:
		return t.sendText(ctx, peer, request)
	case sendpipeline.KindEditText:
		return t.editText(ctx, peer, request)
	case sendpipeline.KindDeleteMessage:
		return t.deleteMessage(ctx, peer, request)
	default:
		return sendpipeline.SendResult{}, fmt.Errorf("sendtransport: unknown request kind %v", request.Kind)
	}
}

func (t *Transport) sendText(ctx context.Context, peer tg.InputPeerClass, request sendpipeline.SendRequest) (sendpipeline.SendResult, error) {
	req := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  request.Text,
		RandomID: apptime.Now().UnixNano(),
	}
	if request.ReplyTo != nil {
		replyToID, err := narrowMessageID(*request.ReplyTo, "reply_to")
		if err != nil {
			return sendpipeline.SendResult{}, err
		}
		req.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: replyToID}
	}

	updates, err := t.api.MessagesSendMessage(ctx, req)
	if err != nil {
		return sendpipeline.SendResult{}, wrapError(err)
	}

	messageID := extractSentMessageID(updates)
	return sendpipeline.SendResult{
		Kind:      sendpipeline.KindSendText,
		MessageID: messageID,
	}, nil
}

func (t *Transport) editText(ctx context.Context, peer tg.InputPeerClass, request sendpipeline.SendRequest) (sendpipeline.SendResult, error) {
	messageID, err := narrowMessageID(request.MessageID, "message_id")
	if err != nil {
		return sendpipeline.SendResult{}, err
	}

	_, err = t.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		Peer:    peer,
		ID:      messageID,
		Message: request.Text,
	})
	if err != nil {
		return sendpipeline.SendResult{}, wrapError(err)
	}

	return sendpipeline.SendResult{
		Kind:      sendpipeline.KindEditText,
		MessageID: request.MessageID,
	}, nil
}

func (t *Transport) deleteMessage(ctx context.Context, peer tg.InputPeerClass, request sendpipeline.SendRequest) (sendpipeline.SendResult, error) {
	messageID, err := narrowMessageID(request.MessageID, "message_id")
	if err != nil {
		return sendpipeline.SendResult{}, err
	}

	var deletedCount int
	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		affected, err := t.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash},
			ID:      []int{messageID},
		})
		if err != nil {
			return sendpipeline.SendResult{}, wrapError(err)
		}
		deletedCount = affected.PtsCount
	default:
		affected, err := t.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
			ID: []int{messageID},
		})
		if err != nil {
			return sendpipeline.SendResult{}, wrapError(err)
		}
		deletedCount = affected.PtsCount
	}

	return sendpipeline.SendResult{
		Kind:         sendpipeline.KindDeleteMessage,
		MessageID:    request.MessageID,
		DeletedCount: deletedCount,
	}, nil
}

// narrowMessageID converts a domain MessageId to the 32-bit id the wire
// protocol actually uses, failing rather than silently truncating.
func narrowMessageID(id events.MessageId, field string) (int, error) {
	v := int64(id)
	if v < -(1<<31) || v > (1<<31-1) {
		return 0, sendpipeline.ErrInvalidMessageId{Field: field, Value: v}
	}
	return int(v), nil
}

// extractSentMessageID scans the update set MessagesSendMessage returns for
// the newly created message's id.
func extractSentMessageID(updates tg.UpdatesClass) events.MessageId {
	var classes []tg.UpdateClass
	switch u := updates.(type) {
	case *tg.Updates:
		classes = u.Updates
	case *tg.UpdatesCombined:
		classes = u.Updates
	}
	for _, u := range classes {
		switch up := u.(type) {
		case *tg.UpdateNewMessage:
			if msg, ok := up.Message.(*tg.Message); ok {
				return events.MessageId(msg.ID)
			}
		case *tg.UpdateNewChannelMessage:
			if msg, ok := up.Message.(*tg.Message); ok {
				return events.MessageId(msg.ID)
			}
		}
	}
	return 0
}

// wrapError classifies a gotd/td error into the sendpipeline vocabulary the
// retry classifier switches on.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return sendpipeline.FloodWaitError{Delay: wait}
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return sendpipeline.RPCError{Code: rpcErr.Code, Name: rpcErr.Type}
	}
	return sendpipeline.TransportError{Err: err}
}
