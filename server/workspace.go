// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concord/lib/clock"
	"github.com/bureau-foundation/concord/lib/contenthash"
	"github.com/bureau-foundation/concord/lib/ledger"
	"github.com/bureau-foundation/concord/lib/resourcelock"
	"github.com/bureau-foundation/concord/lib/schema"
	"github.com/bureau-foundation/concord/lib/syncqueue"
	"github.com/bureau-foundation/concord/transport"
)

// Session is the part of a hosted session a workspace talks through.
// [transport.ServerSession] implements it.
type Session interface {
	// Router receives the session's messages.
	Router() *transport.Router

	// SendEvent delivers one event to each endpoint, in order on each
	// endpoint's connection.
	SendEvent(endpoints []uuid.UUID, kind schema.MessageKind, payload any)
}

// WorkspaceConfig configures a Workspace.
type WorkspaceConfig struct {
	// Directory holds the session's ledgers. It is created if needed.
	Directory string

	// Session carries the workspace's traffic. Required.
	Session Session

	// Clock drives the sync budget and activity timestamps. Nil
	// selects the real clock.
	Clock clock.Clock

	// Logger receives arbitration decisions and ledger failures. Nil
	// discards.
	Logger *slog.Logger

	// CacheBytes bounds each ledger's entry cache. See [ledger.Options].
	CacheBytes int64

	// RetainPackageHistory keeps the bytes of superseded revisions.
	RetainPackageHistory bool
}

type endpointState struct {
	client schema.ClientInfo
	synced bool
}

type playParticipant struct {
	endpoint   uuid.UUID
	simulating bool
}

// Workspace is the server side of one session.
type Workspace struct {
	session Session
	clock   clock.Clock
	logger  *slog.Logger

	transactions *ledger.TransactionLedger
	packages     *ledger.PackageLedger
	activities   *ledger.ActivityLedger
	dataStore    *sessionDataStore

	locks    *resourcelock.Table
	notifier *lockBroadcaster
	queue    *syncqueue.Queue

	// endpoints holds every joined endpoint; order is the join order,
	// which is also the fan-out order.
	endpoints map[uuid.UUID]*endpointState
	order     []uuid.UUID

	// plays maps a play package to its participants in begin order.
	plays map[string][]playParticipant
}

// OpenWorkspace opens and loads the ledgers under config.Directory and
// registers the workspace's handlers on the session router.
func OpenWorkspace(config WorkspaceConfig) (*Workspace, error) {
	if config.Session == nil {
		return nil, errors.New("server: workspace requires a session")
	}
	if config.Directory == "" {
		return nil, errors.New("server: workspace requires a directory")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workspaceClock := config.Clock
	if workspaceClock == nil {
		workspaceClock = clock.Real()
	}

	options := ledger.Options{
		Kind:          ledger.Persistent,
		CacheBytes:    config.CacheBytes,
		RetainHistory: config.RetainPackageHistory,
		Clock:         workspaceClock,
		Logger:        logger,
	}
	transactions, err := ledger.OpenTransactionLedger(config.Directory, options)
	if err != nil {
		return nil, fmt.Errorf("opening transaction ledger: %w", err)
	}
	packages, err := ledger.OpenPackageLedger(config.Directory, options)
	if err != nil {
		return nil, fmt.Errorf("opening package ledger: %w", err)
	}
	activities, err := ledger.OpenActivityLedger(config.Directory, options)
	if err != nil {
		return nil, fmt.Errorf("opening activity ledger: %w", err)
	}
	dataStore, err := openSessionDataStore(config.Directory, options, logger)
	if err != nil {
		return nil, fmt.Errorf("opening data store: %w", err)
	}

	w := &Workspace{
		session:      config.Session,
		clock:        workspaceClock,
		logger:       logger,
		transactions: transactions,
		packages:     packages,
		activities:   activities,
		dataStore:    dataStore,
		queue:        syncqueue.New(workspaceClock),
		endpoints:    make(map[uuid.UUID]*endpointState),
		plays:        make(map[string][]playParticipant),
	}
	w.notifier = &lockBroadcaster{workspace: w}
	w.locks = resourcelock.New(w.notifier)

	if err := w.load(); err != nil {
		return nil, err
	}

	activities.OnActivityAdded(w.broadcastActivity)

	router := config.Session.Router()
	transport.OnEvent(router, schema.KindPackageUpdate, w.handlePackageUpdate)
	transport.OnEvent(router, schema.KindTransactionFinalized, w.handleTransactionFinalized)
	transport.OnEvent(router, schema.KindTransactionSnapshot, w.handleTransactionSnapshot)
	transport.OnEvent(router, schema.KindPlaySession, w.handlePlaySession)
	transport.OnRequest(router, schema.KindResourceLock, w.handleResourceLock)
	transport.OnRequest(router, schema.KindDataStoreFetchOrAdd, w.handleDataStoreFetchOrAdd)
	transport.OnRequest(router, schema.KindDataStoreFetch, w.handleDataStoreFetch)
	transport.OnRequest(router, schema.KindDataStoreCompareExchange, w.handleDataStoreCompareExchange)

	logger.Info("workspace opened",
		"directory", config.Directory,
		"transactions", transactions.NextTransactionIndex(),
		"packages", len(packages.PackageNames()),
		"activities", activities.ActivityCount(),
		"data_store_keys", dataStore.values.Len(),
	)
	return w, nil
}

// load scans the ledgers and re-applies every head revision's save
// point, which rebuilds the live-transaction sets a crash lost.
func (w *Workspace) load() error {
	if err := w.transactions.Load(); err != nil {
		return fmt.Errorf("loading transaction ledger: %w", err)
	}
	if err := w.packages.Load(); err != nil {
		return fmt.Errorf("loading package ledger: %w", err)
	}
	if err := w.activities.Load(); err != nil {
		return fmt.Errorf("loading activity ledger: %w", err)
	}
	if err := w.dataStore.load(); err != nil {
		return fmt.Errorf("loading data store: %w", err)
	}
	for _, name := range w.packages.PackageNames() {
		head, _, err := w.packages.FindHeadPackage(name, false)
		if err != nil {
			w.logger.Warn("package head unreadable, live transactions kept", "package", name, "error", err)
			continue
		}
		w.transactions.TrimLiveTransactions(name, head.Info.NextTransactionIndexWhenSaved)
	}
	return nil
}

// Transactions returns the transaction ledger.
func (w *Workspace) Transactions() *ledger.TransactionLedger { return w.transactions }

// Packages returns the package ledger.
func (w *Workspace) Packages() *ledger.PackageLedger { return w.packages }

// Activities returns the activity ledger.
func (w *Workspace) Activities() *ledger.ActivityLedger { return w.activities }

// Locks returns the lock table.
func (w *Workspace) Locks() *resourcelock.Table { return w.locks }

// IsSynced reports whether endpoint has finished its initial replay.
func (w *Workspace) IsSynced(endpoint uuid.UUID) bool {
	state, ok := w.endpoints[endpoint]
	return ok && state.synced
}

// Endpoints returns the joined endpoints in join order.
func (w *Workspace) Endpoints() []uuid.UUID { return slices.Clone(w.order) }

// PlayParticipants returns the endpoints playing in the play package
// name, in begin order.
func (w *Workspace) PlayParticipants(name string) []uuid.UUID {
	var endpoints []uuid.UUID
	for _, participant := range w.plays[name] {
		endpoints = append(endpoints, participant.endpoint)
	}
	return endpoints
}

// ClientConnected starts the initial replay for endpoint.
func (w *Workspace) ClientConnected(endpoint uuid.UUID, client schema.ClientInfo) {
	if _, ok := w.endpoints[endpoint]; ok {
		w.logger.Warn("endpoint connected twice", "endpoint", endpoint)
		return
	}
	w.endpoints[endpoint] = &endpointState{client: client}
	w.order = append(w.order, endpoint)
	w.queue.SetCommandProcessingMethod(endpoint, syncqueue.ProcessTimeSliced)
	w.queueReplay(endpoint)

	// Recorded after the replay is queued: the new endpoint receives
	// its own connection activity live, behind the replay.
	if _, err := w.activities.RecordConnection(schema.ActivityConnected, client); err != nil {
		w.logger.Error("recording connection activity failed", "endpoint", endpoint, "error", err)
	}
	w.logger.Info("endpoint connected",
		"endpoint", endpoint,
		"user", client.UserName,
		"device", client.DeviceName,
		"replay", w.queue.Len(endpoint),
	)
}

// ClientDisconnected releases everything endpoint held.
func (w *Workspace) ClientDisconnected(endpoint uuid.UUID, client schema.ClientInfo) {
	state, ok := w.endpoints[endpoint]
	if !ok {
		return
	}
	delete(w.endpoints, endpoint)
	w.order = slices.DeleteFunc(w.order, func(id uuid.UUID) bool { return id == endpoint })

	released := w.locks.UnlockAll(endpoint)
	w.endPlaySessions(endpoint)
	w.queue.ClearQueue(endpoint)

	if _, err := w.activities.RecordConnection(schema.ActivityDisconnected, state.client); err != nil {
		w.logger.Error("recording disconnection activity failed", "endpoint", endpoint, "error", err)
	}
	w.logger.Info("endpoint disconnected",
		"endpoint", endpoint,
		"user", client.UserName,
		"released_locks", len(released),
	)
}

// Tick runs the sync queue for at most budget and completes the
// initial sync of every endpoint whose replay has drained. It returns
// the number of commands run.
func (w *Workspace) Tick(budget time.Duration) int {
	processed := w.queue.ProcessQueue(budget)
	for _, endpoint := range w.order {
		state := w.endpoints[endpoint]
		if state.synced || !w.queue.IsQueueEmpty(endpoint) {
			continue
		}
		state.synced = true
		w.queue.SetCommandProcessingMethod(endpoint, syncqueue.ProcessAll)
		w.session.SendEvent([]uuid.UUID{endpoint}, schema.KindInitialSyncCompleted, schema.WorkspaceInitialSyncCompletedEvent{})
		w.logger.Info("endpoint synced", "endpoint", endpoint)
	}
	return processed
}

// queueReplay queues everything a joining endpoint needs to catch up,
// in the order it must be applied.
func (w *Workspace) queueReplay(endpoint uuid.UUID) {
	target := []uuid.UUID{endpoint}

	for index := range w.transactions.NextTransactionIndex() {
		w.queue.QueueCommand(target, func(endpoint uuid.UUID) {
			transaction, err := w.transactions.FindTransaction(index)
			if err != nil {
				w.logger.Warn("skipping unreadable transaction in replay", "endpoint", endpoint, "index", index, "error", err)
				return
			}
			w.session.SendEvent([]uuid.UUID{endpoint}, schema.KindSyncTransaction, schema.WorkspaceSyncTransactionEvent{
				RemainingWork:    w.remaining(endpoint),
				TransactionIndex: index,
				Transaction:      transaction,
			})
		})
	}

	for _, name := range w.packages.PackageNames() {
		head, _ := w.packages.HeadRevision(name)
		for revision := range head + 1 {
			withData := revision == head
			w.queue.QueueCommand(target, func(endpoint uuid.UUID) {
				pkg, err := w.packages.FindPackage(name, revision, withData)
				if err != nil {
					w.logger.Warn("skipping unreadable package revision in replay",
						"endpoint", endpoint, "package", name, "revision", revision, "error", err)
					return
				}
				w.session.SendEvent([]uuid.UUID{endpoint}, schema.KindSyncPackage, schema.WorkspaceSyncPackageEvent{
					RemainingWork:   w.remaining(endpoint),
					PackageRevision: revision,
					Package:         pkg,
				})
			})
		}
	}

	locked := w.locks.Snapshot()
	w.queue.QueueCommand(target, func(endpoint uuid.UUID) {
		w.session.SendEvent([]uuid.UUID{endpoint}, schema.KindSyncLock, schema.WorkspaceSyncLockEvent{
			RemainingWork:   w.remaining(endpoint),
			LockedResources: locked,
		})
	})

	names := make([]string, 0, len(w.plays))
	for name := range w.plays {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, participant := range w.plays[name] {
			event := schema.PlaySessionEvent{
				EventType:       schema.PlaySessionBegin,
				PlayEndpointID:  participant.endpoint,
				PlayPackageName: name,
				IsSimulating:    participant.simulating,
			}
			w.queue.QueueCommand(target, func(endpoint uuid.UUID) {
				w.session.SendEvent([]uuid.UUID{endpoint}, schema.KindPlaySession, event)
			})
		}
	}

	w.queueDataStoreReplay(target)

	for index := range w.activities.ActivityCount() {
		w.queue.QueueCommand(target, func(endpoint uuid.UUID) {
			activity, err := w.activities.FindActivity(index)
			if err != nil {
				w.logger.Warn("skipping unreadable activity in replay", "endpoint", endpoint, "index", index, "error", err)
				return
			}
			kind := activity.Kind.MessageKind()
			if kind == "" {
				w.logger.Warn("skipping activity of unknown kind", "index", index, "kind", activity.Kind)
				return
			}
			w.session.SendEvent([]uuid.UUID{endpoint}, kind, schema.ActivityEvent{Index: index, Activity: activity})
		})
	}

	w.queue.QueueCommand(target, func(endpoint uuid.UUID) {
		w.session.SendEvent([]uuid.UUID{endpoint}, schema.KindActivitiesSynced, schema.ActivitiesSyncedEvent{})
	})
}

// remaining is the replay work still queued for endpoint. The queue
// pops a command before running it, so this excludes the caller.
func (w *Workspace) remaining(endpoint uuid.UUID) uint32 {
	return uint32(w.queue.Len(endpoint))
}

// deliver sends a live event to endpoints. Synced endpoints receive it
// now; an endpoint still replaying receives it after its replay. build
// is called with the remaining-work count for the receiving endpoint.
func (w *Workspace) deliver(endpoints []uuid.UUID, kind schema.MessageKind, build func(remaining uint32) any) {
	var direct []uuid.UUID
	for _, endpoint := range endpoints {
		state, ok := w.endpoints[endpoint]
		if !ok {
			continue
		}
		if state.synced {
			direct = append(direct, endpoint)
			continue
		}
		w.queue.QueueCommand([]uuid.UUID{endpoint}, func(endpoint uuid.UUID) {
			w.session.SendEvent([]uuid.UUID{endpoint}, kind, build(w.remaining(endpoint)))
		})
	}
	if len(direct) > 0 {
		w.session.SendEvent(direct, kind, build(0))
	}
}

func (w *Workspace) deliverEvent(endpoints []uuid.UUID, kind schema.MessageKind, event any) {
	w.deliver(endpoints, kind, func(uint32) any { return event })
}

func (w *Workspace) others(sender uuid.UUID) []uuid.UUID {
	others := make([]uuid.UUID, 0, len(w.order))
	for _, endpoint := range w.order {
		if endpoint != sender {
			others = append(others, endpoint)
		}
	}
	return others
}

func (w *Workspace) sender(ctx transport.MessageContext) (*endpointState, bool) {
	state, ok := w.endpoints[ctx.Sender]
	if !ok {
		w.logger.Warn("dropping message from endpoint that is not connected", "kind", ctx.Kind, "sender", ctx.Sender)
	}
	return state, ok
}

func (w *Workspace) broadcastActivity(index uint64, activity schema.Activity) {
	kind := activity.Kind.MessageKind()
	if kind == "" {
		w.logger.Warn("not broadcasting activity of unknown kind", "index", index, "kind", activity.Kind)
		return
	}
	w.deliverEvent(w.order, kind, schema.ActivityEvent{Index: index, Activity: activity})
}

func (w *Workspace) handlePackageUpdate(ctx transport.MessageContext, event schema.PackageUpdateEvent) {
	state, ok := w.sender(ctx)
	if !ok {
		return
	}
	info := event.Package.Info
	name := info.PackageName
	if name == "" || !info.UpdateType.IsValid() || info.UpdateType == schema.PackageDummy {
		w.logger.Warn("dropping malformed package update",
			"sender", ctx.Sender, "package", name, "update_type", info.UpdateType)
		return
	}

	if failed, ok := w.locks.Lock([]string{name}, ctx.Sender, resourcelock.Explicit); !ok {
		w.logger.Info("package update refused, resource locked",
			"sender", ctx.Sender, "package", name, "owner", failed[name])
		w.sendHead(ctx.Sender, name)
		return
	}
	// A save's lock is held with the explicit flag, so a delete releases
	// it whether it came from a save or from a lock request.
	if info.UpdateType == schema.PackageDeleted {
		w.locks.Unlock([]string{name}, ctx.Sender, resourcelock.Explicit)
	}

	pkg := event.Package
	if len(pkg.Data) > 0 {
		pkg.Info.ContentHash = contenthash.Package(pkg.Data).String()
	}
	// The revision is assigned even when the write fails, and peers
	// must see it.
	revision, err := w.packages.AddPackage(pkg)
	if err != nil {
		w.logger.Error("storing package revision failed", "package", name, "revision", revision, "error", err)
	}
	w.transactions.TrimLiveTransactions(name, info.NextTransactionIndexWhenSaved)

	w.deliver(w.others(ctx.Sender), schema.KindSyncPackage, func(remaining uint32) any {
		return schema.WorkspaceSyncPackageEvent{RemainingWork: remaining, PackageRevision: revision, Package: pkg}
	})
	if _, _, err := w.activities.RecordPackageUpdate(revision, pkg.Info, state.client); err != nil {
		w.logger.Error("recording package activity failed", "package", name, "error", err)
	}
	w.logger.Debug("package updated",
		"sender", ctx.Sender, "package", name, "revision", revision, "update_type", info.UpdateType)
}

// sendHead answers a refused package update with the revision the
// sender should have.
func (w *Workspace) sendHead(endpoint uuid.UUID, name string) {
	head, revision, err := w.packages.FindHeadPackage(name, true)
	if err != nil {
		w.logger.Debug("no head revision to send back", "endpoint", endpoint, "package", name, "error", err)
		return
	}
	w.deliver([]uuid.UUID{endpoint}, schema.KindSyncPackage, func(remaining uint32) any {
		return schema.WorkspaceSyncPackageEvent{RemainingWork: remaining, PackageRevision: revision, Package: head}
	})
}

func (w *Workspace) handleTransactionFinalized(ctx transport.MessageContext, event schema.TransactionFinalizedEvent) {
	state, ok := w.sender(ctx)
	if !ok {
		return
	}
	event.TransactionEndpointID = ctx.Sender

	paths := event.ObjectPaths()
	if failed, ok := w.lockImplicit(paths, ctx.Sender); !ok {
		w.logger.Info("transaction rejected, objects locked",
			"sender", ctx.Sender, "transaction", event.TransactionID, "conflicts", len(failed))
		w.deliverEvent([]uuid.UUID{ctx.Sender}, schema.KindTransactionRejected,
			schema.TransactionRejectedEvent{TransactionID: event.TransactionID})
		return
	}
	index, err := w.transactions.AddTransaction(event)
	w.unlockImplicit(paths, ctx.Sender)
	if err != nil {
		w.logger.Error("storing transaction failed", "transaction", event.TransactionID, "index", index, "error", err)
	}

	w.deliver(w.order, schema.KindSyncTransaction, func(remaining uint32) any {
		return schema.WorkspaceSyncTransactionEvent{RemainingWork: remaining, TransactionIndex: index, Transaction: event}
	})
	if _, err := w.activities.RecordFinalizedTransaction(event, index, state.client); err != nil {
		w.logger.Error("recording transaction activity failed", "index", index, "error", err)
	}
}

func (w *Workspace) handleTransactionSnapshot(ctx transport.MessageContext, event schema.TransactionSnapshotEvent) {
	if _, ok := w.sender(ctx); !ok {
		return
	}
	event.TransactionEndpointID = ctx.Sender

	paths := event.ObjectPaths()
	if _, ok := w.lockImplicit(paths, ctx.Sender); !ok {
		w.logger.Debug("dropping snapshot on locked objects", "sender", ctx.Sender, "transaction", event.TransactionID)
		return
	}
	w.unlockImplicit(paths, ctx.Sender)

	// Snapshots are only useful to endpoints that already apply live
	// traffic; a replaying endpoint will get the finalized transaction.
	var synced []uuid.UUID
	for _, endpoint := range w.others(ctx.Sender) {
		if w.endpoints[endpoint].synced {
			synced = append(synced, endpoint)
		}
	}
	if len(synced) > 0 {
		w.session.SendEvent(synced, schema.KindTransactionSnapshot, event)
	}
}

// lockImplicit takes the arbitration lock for one transaction. The
// lock never outlives the handler, so it is not broadcast.
func (w *Workspace) lockImplicit(paths []string, endpoint uuid.UUID) (map[string]uuid.UUID, bool) {
	w.notifier.muted = true
	defer func() { w.notifier.muted = false }()
	return w.locks.Lock(paths, endpoint, 0)
}

// unlockImplicit releases what lockImplicit took. Explicit locks the
// endpoint already held on the same paths stay held.
func (w *Workspace) unlockImplicit(paths []string, endpoint uuid.UUID) {
	w.notifier.muted = true
	defer func() { w.notifier.muted = false }()
	w.locks.Unlock(paths, endpoint, 0)
}

func (w *Workspace) handlePlaySession(ctx transport.MessageContext, event schema.PlaySessionEvent) {
	if _, ok := w.sender(ctx); !ok {
		return
	}
	if event.PlayPackageName == "" {
		w.logger.Warn("dropping play session event without a package", "sender", ctx.Sender)
		return
	}
	event.PlayEndpointID = ctx.Sender
	name := event.PlayPackageName
	participants := w.plays[name]
	position := slices.IndexFunc(participants, func(p playParticipant) bool { return p.endpoint == ctx.Sender })

	switch event.EventType {
	case schema.PlaySessionBegin:
		if position >= 0 {
			participants[position].simulating = event.IsSimulating
		} else {
			w.plays[name] = append(participants, playParticipant{endpoint: ctx.Sender, simulating: event.IsSimulating})
		}
	case schema.PlaySessionSwitch:
		if position < 0 {
			w.logger.Warn("dropping play switch from endpoint not playing", "sender", ctx.Sender, "package", name)
			return
		}
		participants[position].simulating = event.IsSimulating
	case schema.PlaySessionEnd:
		if position < 0 {
			w.logger.Warn("dropping play end from endpoint not playing", "sender", ctx.Sender, "package", name)
			return
		}
	default:
		w.logger.Warn("dropping play session event of unknown type", "sender", ctx.Sender, "event_type", event.EventType)
		return
	}

	w.deliverEvent(w.others(ctx.Sender), schema.KindPlaySession, event)
	if event.EventType == schema.PlaySessionEnd {
		w.leavePlay(name, ctx.Sender)
	}
}

// endPlaySessions removes a departed endpoint from every play session
// and tells the remaining endpoints it stopped playing.
func (w *Workspace) endPlaySessions(endpoint uuid.UUID) {
	var names []string
	for name, participants := range w.plays {
		if slices.ContainsFunc(participants, func(p playParticipant) bool { return p.endpoint == endpoint }) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		w.deliverEvent(w.order, schema.KindPlaySession, schema.PlaySessionEvent{
			EventType:       schema.PlaySessionEnd,
			PlayEndpointID:  endpoint,
			PlayPackageName: name,
		})
		w.leavePlay(name, endpoint)
	}
}

// leavePlay removes endpoint from the play session of name. When the
// last participant leaves, a dummy revision discards the live
// transactions made during play.
func (w *Workspace) leavePlay(name string, endpoint uuid.UUID) {
	participants := slices.DeleteFunc(w.plays[name], func(p playParticipant) bool { return p.endpoint == endpoint })
	if len(participants) > 0 {
		w.plays[name] = participants
		return
	}
	delete(w.plays, name)

	savePoint := w.transactions.NextTransactionIndex()
	dummy := schema.Package{Info: schema.PackageInfo{
		PackageName:                   name,
		UpdateType:                    schema.PackageDummy,
		NextTransactionIndexWhenSaved: savePoint,
	}}
	revision, err := w.packages.AddPackage(dummy)
	if err != nil {
		w.logger.Error("storing play discard revision failed", "package", name, "revision", revision, "error", err)
	}
	w.transactions.TrimLiveTransactions(name, savePoint)
	w.deliver(w.order, schema.KindSyncPackage, func(remaining uint32) any {
		return schema.WorkspaceSyncPackageEvent{RemainingWork: remaining, PackageRevision: revision, Package: dummy}
	})
	w.logger.Info("play session ended", "package", name, "revision", revision, "save_point", savePoint)
}

func (w *Workspace) handleResourceLock(ctx transport.MessageContext, request schema.ResourceLockRequest) (schema.ResourceLockResponse, error) {
	if _, ok := w.endpoints[ctx.Sender]; !ok {
		return schema.ResourceLockResponse{}, transport.Failed("endpoint %s is not connected", ctx.Sender)
	}
	if request.ClientID != ctx.Sender {
		return schema.ResourceLockResponse{}, transport.InvalidRequest(
			"lock request for %s sent by %s", request.ClientID, ctx.Sender)
	}

	var failed map[string]uuid.UUID
	switch request.LockType {
	case schema.ResourceLock:
		failed, _ = w.locks.Lock(request.ResourceNames, ctx.Sender, resourcelock.Explicit)
	case schema.ResourceUnlock:
		failed, _ = w.locks.Unlock(request.ResourceNames, ctx.Sender, resourcelock.Explicit)
	default:
		return schema.ResourceLockResponse{}, transport.InvalidRequest("invalid lock type %d", request.LockType)
	}
	w.logger.Debug("lock request",
		"sender", ctx.Sender, "lock_type", request.LockType,
		"resources", len(request.ResourceNames), "failed", len(failed))
	return schema.ResourceLockResponse{FailedResources: failed, LockType: request.LockType}, nil
}

// lockBroadcaster fans lock changes out to every endpoint.
type lockBroadcaster struct {
	workspace *Workspace
	muted     bool
}

func (b *lockBroadcaster) ResourcesLocked(owner uuid.UUID, names []string) {
	b.broadcast(owner, names, schema.ResourceLock)
}

func (b *lockBroadcaster) ResourcesUnlocked(owner uuid.UUID, names []string) {
	b.broadcast(owner, names, schema.ResourceUnlock)
}

func (b *lockBroadcaster) broadcast(owner uuid.UUID, names []string, lockType schema.ResourceLockType) {
	if b.muted {
		return
	}
	w := b.workspace
	w.deliverEvent(w.order, schema.KindResourceLockEvent, schema.ResourceLockEvent{
		ClientID:      owner,
		ResourceNames: slices.Clone(names),
		LockType:      lockType,
	})
}
