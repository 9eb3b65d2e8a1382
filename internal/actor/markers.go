package actor

// InputBase can be embedded into input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase can be embedded into effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}

// Step applies a reducer to a single (state, input) pair without executing
// effects. It exists for reducer-level unit tests.
func Step[S any](state S, input Input, reducer ReducerFunc[S]) (S, []Effect) {
	return reducer(state, input)
}
