// Package nats provides a JetStream backed es.Log.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/bankes/core/es"
)

const (
	defaultSubjectPrefix = "bankes.log"
	defaultStreamName    = "BANKES_LOG"

	headerRevision  = "x-revision"
	headerEventType = "x-event-type"

	fetchBatchSize = 100
	fetchMaxWait   = time.Second
)

type LogConfig struct {
	Connect       Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix is prepended to every stream key
	StreamName    string
	Storage       jetstream.StorageType
	// MaxAppendTries bounds the retries of AppendUnconditional when it races
	// another writer. Defaults to 10.
	MaxAppendTries uint
}

// Log stores each log stream on its own subject "<prefix>.<stream>" of one
// JetStream stream. Every message carries its stream revision in a header.
//
// Conditional appends use the per-subject last sequence expectation of
// JetStream, so a writer that read a stale revision is rejected by the
// server. A batch is published message by message: a crash in the middle of
// a batch can leave a prefix of it written.
type Log struct {
	nc             *natsgo.Conn
	closeNc        closeFunc
	js             jetstream.JetStream
	stream         jetstream.Stream
	log            *slog.Logger
	subjectPrefix  string
	maxAppendTries uint
}

func NewLog(ctx context.Context, cfg LogConfig) (*Log, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNatsCon, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNatsCon()
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = defaultStreamName
	}

	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}

	maxTries := cfg.MaxAppendTries
	if maxTries == 0 {
		maxTries = 10
	}

	log = log.With(
		slog.String("log", "nats_js"),
		slog.String("stream", streamName),
		slog.String("subjectPrefix", subjectPrefix),
	)

	log.Debug("ensuring stream")

	stream, streamInfo, err := ensureStream(ctx, js, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".>"},
		Storage:  cfg.Storage,
		FirstSeq: 1,
	})
	if err != nil {
		closeNatsCon()
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}

	log.Debug("ensured", slog.Any("stream", streamInfo.Config.Name))

	return &Log{
		nc:             nc,
		closeNc:        closeNatsCon,
		js:             js,
		stream:         stream,
		log:            log,
		subjectPrefix:  subjectPrefix,
		maxAppendTries: maxTries,
	}, nil
}

func (l *Log) Close() error {
	l.js.CleanupPublisher()
	l.closeNc()
	l.log.Debug("closed log")
	return nil
}

func (l *Log) ReadForward(ctx context.Context, stream string, from es.Version) ([]es.Record, error) {
	last, err := l.last(ctx, stream)
	if err != nil {
		return nil, err
	}
	if from > last.rec.Position {
		return []es.Record{}, nil
	}
	if from == last.rec.Position {
		return []es.Record{last.rec}, nil
	}

	all, err := l.consume(ctx, stream, last.seq)
	if err != nil {
		return nil, err
	}

	out := make([]es.Record, 0, len(all))
	for _, r := range all {
		if r.Position >= from {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Log) ReadBackward(ctx context.Context, stream string, from es.Version, maxCount int) ([]es.Record, error) {
	last, err := l.last(ctx, stream)
	if err != nil {
		return nil, err
	}
	if maxCount <= 0 {
		return []es.Record{}, nil
	}
	if maxCount == 1 && from >= last.rec.Position {
		return []es.Record{last.rec}, nil
	}

	all, err := l.consume(ctx, stream, last.seq)
	if err != nil {
		return nil, err
	}
	slices.Reverse(all)

	out := make([]es.Record, 0, maxCount)
	for _, r := range all {
		if len(out) == maxCount {
			break
		}
		if r.Position <= from {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *Log) AppendConditional(
	ctx context.Context,
	stream string,
	expected es.Version,
	events []es.EventData,
) (es.Version, error) {
	if err := es.ValidateAppend(stream, events); err != nil {
		return es.NoStream, err
	}

	current, lastSeq, err := l.head(ctx, stream)
	if err != nil {
		return es.NoStream, err
	}
	if current != expected {
		return es.NoStream, es.ConflictError(stream, expected, current)
	}
	return l.publish(ctx, stream, current, lastSeq, events)
}

func (l *Log) AppendUnconditional(ctx context.Context, stream string, events []es.EventData) (es.Version, error) {
	if err := es.ValidateAppend(stream, events); err != nil {
		return es.NoStream, err
	}

	return backoff.Retry(ctx, func() (es.Version, error) {
		current, lastSeq, err := l.head(ctx, stream)
		if err != nil {
			return es.NoStream, backoff.Permanent(err)
		}
		rev, err := l.publish(ctx, stream, current, lastSeq, events)
		if err != nil && !errors.Is(err, es.ErrConcurrencyConflict) {
			return es.NoStream, backoff.Permanent(err)
		}
		return rev, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(l.maxAppendTries),
	)
}

// publish writes events after revision current, expecting lastSeq to be the
// stream sequence of the subject's newest message (0 if there is none).
func (l *Log) publish(
	ctx context.Context,
	stream string,
	current es.Version,
	lastSeq uint64,
	events []es.EventData,
) (es.Version, error) {
	subject := l.subject(stream)

	for i, e := range events {
		msg := natsgo.NewMsg(subject)
		msg.Header.Set(headerRevision, strconv.FormatInt(current.Next().Int64(), 10))
		msg.Header.Set(headerEventType, e.Type)
		msg.Data = e.Data

		ack, err := l.js.PublishMsg(
			ctx,
			msg,
			jetstream.WithMsgID(e.ID),
			jetstream.WithExpectLastSequencePerSubject(lastSeq),
		)
		if err != nil {
			if isWrongLastSequence(err) {
				if i > 0 {
					l.log.Error(
						"batch interrupted by concurrent writer",
						slog.String("subject", subject),
						current.SlogAttrWithKey("revision"),
					)
				}
				return es.NoStream, fmt.Errorf("%w: stream %s moved past revision %d", es.ErrConcurrencyConflict, stream, current)
			}
			return es.NoStream, fmt.Errorf("failed to append to subject %s %s: %w", subject, e.Type, err)
		}

		current = current.Next()
		lastSeq = ack.Sequence
	}

	l.log.Debug(
		"append",
		slog.String("subject", subject),
		current.SlogAttrWithKey("revision"),
		slog.Uint64("seq", lastSeq),
		slog.Int("num_events", len(events)),
	)
	return current, nil
}

type lastRecord struct {
	rec es.Record
	seq uint64
}

// last returns the newest record of stream or es.ErrStreamNotFound.
func (l *Log) last(ctx context.Context, stream string) (*lastRecord, error) {
	lm, err := l.stream.GetLastMsgForSubject(ctx, l.subject(stream))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return nil, es.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last message for stream %q: %w", stream, err)
	}

	rec, err := decodeRecord(stream, lm.Header, lm.Data, lm.Time)
	if err != nil {
		return nil, err
	}
	return &lastRecord{rec: rec, seq: lm.Sequence}, nil
}

// head returns the revision and sequence of the newest message of stream,
// or es.NoStream and 0.
func (l *Log) head(ctx context.Context, stream string) (es.Version, uint64, error) {
	last, err := l.last(ctx, stream)
	if errors.Is(err, es.ErrStreamNotFound) {
		return es.NoStream, 0, nil
	}
	if err != nil {
		return es.NoStream, 0, err
	}
	return last.rec.Position, last.seq, nil
}

// consume reads all messages of stream up to and including endSeq.
func (l *Log) consume(ctx context.Context, stream string, endSeq uint64) ([]es.Record, error) {
	cc, err := l.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		FilterSubjects: []string{l.subject(stream)},
	})
	if err != nil {
		return nil, err
	}

	var out []es.Record

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mb, err := cc.Fetch(fetchBatchSize, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			return nil, err
		}

		for msg := range mb.Messages() {
			md, err := msg.Metadata()
			if err != nil {
				return nil, err
			}
			rec, err := decodeRecord(stream, msg.Headers(), msg.Data(), md.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("failed to decode message: %w", err)
			}
			out = append(out, rec)

			if md.Sequence.Stream >= endSeq {
				return out, nil
			}
		}
		if err := mb.Error(); err != nil && !errors.Is(err, natsgo.ErrTimeout) {
			return nil, err
		}
	}
}

func decodeRecord(stream string, hdr natsgo.Header, data []byte, ts time.Time) (es.Record, error) {
	rev, err := strconv.ParseInt(hdr.Get(headerRevision), 10, 64)
	if err != nil {
		return es.Record{}, fmt.Errorf("invalid %s header on stream %s: %w", headerRevision, stream, err)
	}
	return es.Record{
		Stream:     stream,
		Position:   es.Version(rev),
		ID:         hdr.Get(natsgo.MsgIdHdr),
		Type:       hdr.Get(headerEventType),
		Data:       data,
		RecordedAt: ts,
	}, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig) (s jetstream.Stream, si *jetstream.StreamInfo, err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*natsgo.DefaultTimeout)
	defer cancel()

	s, err = js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	si, err = s.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, si, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func (l *Log) subject(stream string) string {
	return l.subjectPrefix + "." + stream
}

var _ es.Log = (*Log)(nil)
