// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/actor"
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/effect"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
	"github.com/reflexcore/reflexcore/worker"
)

// echoWorkerFactory builds an actor.WorkerFactory whose worker ignores
// the state it's given and always returns the same (result, deps) pair
// of arena pointers, standing in for a real compiled query so this
// file's tests exercise hub's wiring rather than package
// compiler/wasmgen (that pairing is covered by compile_test.go and
// cmd/reflexc's tests).
func echoWorkerFactory(t *testing.T, result, deps byte) actor.WorkerFactory {
	t.Helper()
	m := &wasmgen.Module{Memories: []wasmgen.Limits{{Min: 1}}}
	body := []byte{
		0x00, // no locals
		0x41, result,
		0x41, deps,
		0x0B,
	}
	idx := m.AddFunction(wasmgen.FuncType{
		Params:  []wasmgen.ValType{wasmgen.ValI32},
		Results: []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI32},
	}, body)
	m.Export("run", wasmgen.KindFunc, idx)
	m.Export("memory", wasmgen.KindMemory, 0)
	m.AddActiveData(0, []byte{8, 0, 0, 0})
	module := m.Encode()

	return func(ctx context.Context, cacheKey uint64, query arena.Pointer, queryArena *arena.Arena) (*worker.Worker, error) {
		return worker.New(ctx, module, "run", worker.Options{})
	}
}

func TestHubBridgesQuerySubscribeThroughEvaluateBackToQueryManager(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.New(os.Stderr, t.Name()+": ", 0)
	h := newHub(logger)

	queryArena := arena.New(arena.NewHeapBacking())
	queryFactory := term.NewFactory(queryArena)
	queryManager := actor.NewQueryManager(queryFactory, actor.NewQueryManagerMetrics(t.Name()))
	evaluateHandler := actor.NewEvaluateHandler(echoWorkerFactory(t, 7, 9), h.dispatch)
	effects := effect.NewRouter()

	h.queries = queryManager
	h.evaluate = evaluateHandler
	h.effects = effects

	evaluateHandler.Start(ctx)
	defer evaluateHandler.Stop(ctx)

	query := queryFactory.CreateInt(123)
	h.dispatch(actor.QuerySubscribeAction{Query: query, Arena: queryArena, Label: "a-query"})

	inspector := actor.NewInspector(evaluateHandler, queryManager)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := inspector.Snapshot()
		if len(snap.Effects) == 1 && snap.Effects[0].HasValue {
			require.Equal(t, actor.EvaluateEffectType, snap.Effects[0].EffectType)
			require.Equal(t, 1, snap.Effects[0].SubscriptionCount)
			require.Len(t, snap.Queries, 1)
			require.True(t, snap.Queries[0].HasResult)
			require.Equal(t, "a-query", snap.Queries[0].Label)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for an evaluate result to reach the query manager")
}

// fakeHandler records whether it was asked to (un)subscribe, to prove
// hub.dispatch routed a non-evaluate EffectSubscribeAction to the
// effect.Router rather than treating it as an evaluate effect.
type fakeHandler struct {
	effectType string
	subscribed bool
}

func (fh *fakeHandler) Accept(effectType string) bool { return effectType == fh.effectType }
func (fh *fakeHandler) HandleSubscribe(actor.EffectSubscribeAction, actor.Dispatch) {
	fh.subscribed = true
}
func (fh *fakeHandler) HandleUnsubscribe(actor.EffectUnsubscribeAction, actor.Dispatch) {
	fh.subscribed = false
}

func TestHubRoutesNonEvaluateEffectsToRouter(t *testing.T) {
	logger := log.New(os.Stderr, t.Name()+": ", 0)
	h := newHub(logger)

	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	cond := f.CreateCondition(term.ConditionCustom, f.CreateList([]arena.Pointer{f.CreateInt(0)}), arena.Null, "some::other-effect")

	fh := &fakeHandler{effectType: "some::other-effect"}
	h.queries = actor.NewQueryManager(f, actor.NewQueryManagerMetrics(t.Name()))
	h.evaluate = actor.NewEvaluateHandler(nil, h.dispatch)
	h.effects = effect.NewRouter(fh)

	h.dispatch(actor.EffectSubscribeAction{
		EffectType: "some::other-effect",
		Conditions: []arena.Pointer{cond},
		Arena:      a,
	})
	require.True(t, fh.subscribed)

	h.dispatch(actor.EffectUnsubscribeAction{
		EffectType: "some::other-effect",
		Conditions: []arena.Pointer{cond},
		Arena:      a,
	})
	require.False(t, fh.subscribed)
}
