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

package effect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/actor"
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

func TestRouterRoutesToFirstAcceptingHandler(t *testing.T) {
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	cond := variableCondition(f, EffectTypeVariableGet, 1, f.CreateInt(0))

	r := NewRouter(NewTimeoutHandler(), NewVariableHandler())
	var got actor.EffectEmitAction
	r.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableGet,
		Conditions: []arena.Pointer{cond},
		Arena:      a,
	}, func(act actor.Action) {
		if emit, ok := act.(actor.EffectEmitAction); ok {
			got = emit
		}
	})
	require.Len(t, got.Batches, 1)
	require.Equal(t, EffectTypeVariableGet, got.Batches[0].EffectType)
}

func TestRouterIgnoresUnrecognizedEffectType(t *testing.T) {
	r := NewRouter(NewTimeoutHandler(), NewVariableHandler())
	called := false
	r.HandleSubscribe(actor.EffectSubscribeAction{EffectType: "reflex::unknown"}, func(actor.Action) {
		called = true
	})
	require.False(t, called)
}
