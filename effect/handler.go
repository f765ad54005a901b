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

// Package effect implements the uniform handler contract an external
// collaborator satisfies to answer Custom-condition effects, plus two
// illustrative handlers (timeout, variable) grounded on
// original_source/reflex-handlers/src/actor/timeout.rs and
// .../stdlib/variable.rs. Loader/network handlers (fetch, graphql-ws,
// timestamp) are out of scope; these two exist to exercise the contract
// end-to-end without pulling in a parser or network stack.
package effect

import "github.com/reflexcore/reflexcore/actor"

// Handler answers effect subscriptions for one or more effect types,
// emitting results back via the Dispatch it is given. Accept lets a
// Router decide which registered Handler a given EffectSubscribeAction/
// EffectUnsubscribeAction belongs to, mirroring the recurring pattern
// throughout original_source/reflex-runtime/src/actor of an `accept`
// predicate gating a `handle` call.
type Handler interface {
	Accept(effectType string) bool
	HandleSubscribe(action actor.EffectSubscribeAction, dispatch actor.Dispatch)
	HandleUnsubscribe(action actor.EffectUnsubscribeAction, dispatch actor.Dispatch)
}

// Router dispatches EffectSubscribe/EffectUnsubscribe actions to
// whichever registered Handler accepts the action's effect type, the
// same role tenant/dcache/cache.go's bucket map plays in routing a
// segment fetch to the right worker by etag.
type Router struct {
	handlers []Handler
}

// NewRouter builds a Router over handlers, tried in order.
func NewRouter(handlers ...Handler) *Router {
	return &Router{handlers: handlers}
}

func (r *Router) find(effectType string) Handler {
	for _, h := range r.handlers {
		if h.Accept(effectType) {
			return h
		}
	}
	return nil
}

// HandleSubscribe routes action to its accepting Handler, if any.
func (r *Router) HandleSubscribe(action actor.EffectSubscribeAction, dispatch actor.Dispatch) {
	if h := r.find(action.EffectType); h != nil {
		h.HandleSubscribe(action, dispatch)
	}
}

// HandleUnsubscribe routes action to its accepting Handler, if any.
func (r *Router) HandleUnsubscribe(action actor.EffectUnsubscribeAction, dispatch actor.Dispatch) {
	if h := r.find(action.EffectType); h != nil {
		h.HandleUnsubscribe(action, dispatch)
	}
}
