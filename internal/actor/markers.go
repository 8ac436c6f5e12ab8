package actor

// InputBase can be embedded in a struct to make it an Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase can be embedded in a struct to make it an Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}

// Step applies a reducer to one input without running any effects. Reducer
// tests use it to read as a single transition.
func Step[S any](state S, input Input, reducer ReducerFunc[S]) (S, []Effect) {
	return reducer(state, input)
}
