package transaction

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commontoolsinc/loom/pkg/attestation"
	"github.com/commontoolsinc/loom/pkg/cfc"
	"github.com/commontoolsinc/loom/pkg/log"
	"github.com/commontoolsinc/loom/pkg/metrics"
	"github.com/commontoolsinc/loom/pkg/reference"
	"github.com/commontoolsinc/loom/pkg/replica"
	"github.com/commontoolsinc/loom/pkg/schema"
	"github.com/commontoolsinc/loom/pkg/types"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusReady   Status = "ready"
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
)

// Provider opens replicas for the spaces a transaction touches. The
// in-tree implementation is replica.Manager; a remote memory provider
// satisfies the same seam.
type Provider interface {
	Open(space types.Space) (*replica.Replica, error)
}

// ReadOptions direct a single read.
type ReadOptions struct {
	// Schema, when set, contributes its ifc labels along the path to
	// the transaction's taint.
	Schema *schema.Schema
}

// WriteOptions direct a single write.
type WriteOptions struct {
	// Schema, when set, supplies the destination's ifc labels for the
	// flow-control check.
	Schema *schema.Schema
	// Labels override the schema walk with explicit destination
	// labels, for callers whose schema is rooted below the fact.
	Labels []string
}

// Transaction binds readers over replica snapshots with at most one
// writer. Reads observe a per-entity snapshot fixed at first read;
// writes stage composed values in the journal until commit.
type Transaction struct {
	id       string
	provider Provider
	journal  *Journal
	readers  map[types.Space]*Reader
	writer   *Writer
	status   Status
	taint    *cfc.Taint
	dataURIs map[string]any
	logger   zerolog.Logger
}

// Reader reads one space at a fixed snapshot.
type Reader struct {
	tx      *Transaction
	space   types.Space
	replica *replica.Replica
}

// Writer stages writes for the single writable space.
type Writer struct {
	*Reader
}

// Option configures a transaction at open.
type Option func(*Transaction)

// WithTaint attaches a flow-control context.
func WithTaint(lattice *cfc.Lattice, mode cfc.Mode) Option {
	return func(t *Transaction) {
		t.taint = cfc.NewTaint(lattice, mode)
	}
}

// New opens a transaction against a provider.
func New(provider Provider, opts ...Option) *Transaction {
	t := &Transaction{
		id:       uuid.New().String(),
		provider: provider,
		journal:  NewJournal(),
		readers:  make(map[types.Space]*Reader),
		status:   StatusReady,
		dataURIs: make(map[string]any),
		logger:   log.WithComponent("transaction"),
	}
	for _, opt := range opts {
		opt(t)
	}
	metrics.TransactionsOpened.Inc()
	return t
}

// ID returns the transaction's identifier.
func (t *Transaction) ID() string {
	return t.id
}

// Taint exposes the flow-control context, nil when disabled.
func (t *Transaction) Taint() *cfc.Taint {
	return t.taint
}

// Journal exposes the transaction's activity log.
func (t *Transaction) Journal() *Journal {
	return t.journal
}

// StatusReport is the answer of Status.
type StatusReport struct {
	Status  Status
	Journal *Journal
}

// Status reports the transaction's lifecycle state and journal.
func (t *Transaction) Status() StatusReport {
	return StatusReport{Status: t.status, Journal: t.journal}
}

func (t *Transaction) checkReady() error {
	if t.status != StatusReady {
		return &CompleteError{Status: t.status}
	}
	return nil
}

// NewReader returns a reader for a space. Readers may be opened for
// many spaces.
func (t *Transaction) NewReader(space types.Space) (*Reader, error) {
	if err := t.checkReady(); err != nil {
		return nil, err
	}
	if reader, ok := t.readers[space]; ok {
		return reader, nil
	}
	rep, err := t.provider.Open(space)
	if err != nil {
		return nil, err
	}
	reader := &Reader{tx: t, space: space, replica: rep}
	t.readers[space] = reader
	return reader, nil
}

// NewWriter returns the writer for a space. The first call locks the
// transaction's write space; further calls for the same space return
// the same writer, any other space fails with WriteIsolationError.
func (t *Transaction) NewWriter(space types.Space) (*Writer, error) {
	if err := t.checkReady(); err != nil {
		return nil, err
	}
	if t.writer != nil {
		if t.writer.space != space {
			return nil, &WriteIsolationError{Open: t.writer.space, Requested: space}
		}
		return t.writer, nil
	}
	reader, err := t.NewReader(space)
	if err != nil {
		return nil, err
	}
	t.writer = &Writer{Reader: reader}
	return t.writer, nil
}

// snapshot returns the fact observed for an entity, fixing it at
// first use so later replica commits stay invisible.
func (r *Reader) snapshot(key types.FactKey) snapshot {
	if snap, ok := r.tx.journal.observed(r.space, key); ok {
		return snap
	}
	var observed *types.Fact
	var hash types.Reference
	if fact, ok := r.replica.Get(key); ok {
		observed = &fact
		hash = r.replica.Hash(key)
	}
	return r.tx.journal.observe(r.space, key, observed, hash)
}

// current returns the value a read at the address's entity resolves
// against: staged writes first (read-your-writes), then the snapshot.
func (t *Transaction) current(space types.Space, key types.FactKey) (any, error) {
	if t.writer != nil && t.writer.space == space {
		if value, ok := t.journal.staged(space, key); ok {
			return value, nil
		}
	}
	reader, err := t.NewReader(space)
	if err != nil {
		return nil, err
	}
	snap := reader.snapshot(key)
	if snap.fact == nil {
		return nil, nil
	}
	return snap.fact.Is, nil
}

// Get exposes the transaction's composed view as a fact source for
// traversal: staged writes first, then the snapshot fixed at first
// read. The boolean is false for unclaimed entities.
func (t *Transaction) Get(space types.Space, key types.FactKey) (types.Fact, bool) {
	if t.status != StatusReady {
		return types.Fact{}, false
	}
	if t.writer != nil && t.writer.space == space {
		if value, ok := t.journal.staged(space, key); ok {
			return types.Fact{The: key.The, Of: key.Of, Is: value}, true
		}
	}
	reader, err := t.NewReader(space)
	if err != nil {
		return types.Fact{}, false
	}
	snap := reader.snapshot(key)
	if snap.fact == nil {
		return types.Fact{}, false
	}
	return *snap.fact, true
}

// Read resolves the value at an address within the transaction. The
// read is recorded in the journal and, when options carry a schema,
// its ifc labels join the taint.
func (t *Transaction) Read(address types.Address, opts ...ReadOptions) (attestation.Attestation, error) {
	if err := t.checkReady(); err != nil {
		return attestation.Attestation{}, err
	}
	if address.Type != types.ApplicationJSON {
		return attestation.Attestation{}, &reference.UnsupportedMediaTypeError{
			Got: address.Type, Want: types.ApplicationJSON,
		}
	}

	var value any
	if strings.HasPrefix(string(address.ID), "data:") {
		decoded, err := t.decodeDataURI(string(address.ID), address.Type)
		if err != nil {
			return attestation.Attestation{}, err
		}
		value = decoded
	} else {
		current, err := t.current(address.Space, address.Key())
		if err != nil {
			return attestation.Attestation{}, err
		}
		value = current
	}

	t.journal.recordRead(address)
	root := attestation.New(types.Address{
		Space: address.Space, ID: address.ID, Type: address.Type,
	}, value)
	result, err := root.Read(address.Path)
	if err != nil {
		return attestation.Attestation{}, err
	}
	if len(opts) > 0 && opts[0].Schema != nil && t.taint != nil {
		resolver := schema.NewResolver(opts[0].Schema)
		if labels, err := resolver.LabelsAtPath(opts[0].Schema, address.Path); err == nil {
			t.taint.Observe(labels)
		}
	}
	return result, nil
}

// decodeDataURI decodes an inline datum exactly once per transaction.
func (t *Transaction) decodeDataURI(uri string, want types.MediaType) (any, error) {
	if value, ok := t.dataURIs[uri]; ok {
		return value, nil
	}
	value, err := reference.DecodeDataValue(uri, want)
	if err != nil {
		return nil, err
	}
	t.dataURIs[uri] = value
	return value, nil
}

// Write stages a value at an address. The first write locks the
// transaction's write space. When options carry a schema, the
// destination's ifc labels are checked against the taint.
func (t *Transaction) Write(address types.Address, value any, opts ...WriteOptions) (attestation.Attestation, error) {
	if err := t.checkReady(); err != nil {
		return attestation.Attestation{}, err
	}
	if address.Type != types.ApplicationJSON {
		return attestation.Attestation{}, &reference.UnsupportedMediaTypeError{
			Got: address.Type, Want: types.ApplicationJSON,
		}
	}
	if _, err := t.NewWriter(address.Space); err != nil {
		return attestation.Attestation{}, err
	}
	if t.taint != nil {
		var labels []string
		if len(opts) > 0 {
			labels = opts[0].Labels
			if labels == nil && opts[0].Schema != nil {
				resolver := schema.NewResolver(opts[0].Schema)
				if collected, err := resolver.LabelsAtPath(opts[0].Schema, address.Path); err == nil {
					labels = collected
				}
			}
		}
		if err := t.taint.CheckWrite(address, labels); err != nil {
			t.logger.Debug().Str("address", address.String()).Msg("Write refused by flow control")
			t.Abort(err)
			return attestation.Attestation{}, err
		}
	}

	key := address.Key()
	current, err := t.current(address.Space, key)
	if err != nil {
		return attestation.Attestation{}, err
	}
	root := attestation.New(types.Address{
		Space: address.Space, ID: address.ID, Type: address.Type,
	}, current)
	next, err := root.Write(address.Path, value)
	if err != nil {
		return attestation.Attestation{}, err
	}
	t.journal.recordWrite(address)
	t.journal.stage(address.Space, key, next.Value)
	return attestation.New(address, value), nil
}

// WriteValueOrThrow writes a value, synthesising missing parent
// containers reported through not-found prefixes. An integer key
// segment synthesises an array, any other an object.
func (t *Transaction) WriteValueOrThrow(address types.Address, value any, opts ...WriteOptions) error {
	_, err := t.Write(address, value, opts...)
	if err == nil {
		return nil
	}
	var notFound *attestation.NotFoundError
	var mismatch *attestation.TypeMismatchError
	switch {
	case errors.As(err, &notFound):
		// The last valid prefix holds a container; land the missing
		// sub-tree one segment below it.
		missing := address.Path[len(notFound.Prefix):]
		if len(missing) == 0 {
			return err
		}
		target := address
		target.Path = notFound.Prefix.Append(missing[0])
		_, err = t.Write(target, wrapSegments(missing[1:], value), opts...)
		return err
	case errors.As(err, &mismatch) && mismatch.Actual == "undefined":
		// The prefix resolves to nothing at all (unclaimed fact or a
		// null value); replace it with the synthesised sub-tree.
		missing := address.Path[len(mismatch.Prefix):]
		target := address
		target.Path = mismatch.Prefix
		_, err = t.Write(target, wrapSegments(missing, value), opts...)
		return err
	default:
		return err
	}
}

// wrapSegments nests value under the given segments, choosing arrays
// for integer segments and objects otherwise.
func wrapSegments(segments types.Path, value any) any {
	composed := value
	for i := len(segments) - 1; i >= 0; i-- {
		composed = synthesize(segments[i], composed)
	}
	return composed
}

func synthesize(segment string, value any) any {
	if index, ok := types.Index(segment); ok {
		container := make([]any, index+1)
		container[index] = value
		return container
	}
	return map[string]any{segment: value}
}

// Abort terminates the transaction without effect. Abort after
// termination is idempotent.
func (t *Transaction) Abort(reason any) error {
	if t.status != StatusReady {
		return nil
	}
	t.status = StatusAborted
	metrics.TransactionsAborted.Inc()
	t.logger.Debug().Str("tx_id", t.id).Interface("reason", reason).Msg("Transaction aborted")
	return nil
}

// Commit composes the journal into claims and facts and submits them
// to the write space's replica. A read-only transaction terminates
// without submission. Commit after termination fails with
// CompleteError except for a repeated commit of a done transaction,
// which is a no-op.
func (t *Transaction) Commit() (*types.Commit, error) {
	if t.status == StatusDone {
		return nil, nil
	}
	if t.status != StatusReady {
		return nil, &CompleteError{Status: t.status}
	}

	if t.writer == nil {
		// Only reads happened; nothing to submit.
		t.status = StatusDone
		metrics.TransactionsCommitted.Inc()
		return nil, nil
	}

	space := t.writer.space
	changes := t.compose(space)
	commit, err := t.writer.replica.Apply(changes)
	if err != nil {
		t.status = StatusAborted
		metrics.TransactionsAborted.Inc()
		return nil, err
	}
	t.status = StatusDone
	metrics.TransactionsCommitted.Inc()
	t.logger.Debug().
		Str("tx_id", t.id).
		Str("space", string(space)).
		Int("facts", len(changes.Facts)).
		Msg("Transaction committed")
	return commit, nil
}

// compose builds the commit payload: one claim per entity observed in
// the write space and one fact per staged entity, in first-write
// journal order, each fact caused by the snapshot it supersedes.
func (t *Transaction) compose(space types.Space) types.Changes {
	var changes types.Changes
	for key, snap := range t.journal.history[space] {
		changes.Claims = append(changes.Claims, types.Claim{
			Of: key.Of, The: key.The, Expected: snap.hash,
		})
	}
	for _, key := range t.journal.stagedOrder(space) {
		value := t.journal.novelty[space][key]
		fact := types.Fact{The: key.The, Of: key.Of, Is: value}
		if snap, ok := t.journal.observed(space, key); ok {
			fact.Cause = snap.hash
		}
		changes.Facts = append(changes.Facts, fact)
	}
	return changes
}
