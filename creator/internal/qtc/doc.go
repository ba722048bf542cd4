// Package qtc implements the Qualitative Trajectory Calculus classifier that
// turns a history of observer/entity positions into a sequence of symbolic
// states.
//
// For every pair of consecutive samples the observer k and the entity l each
// get a symbol per relation:
//
//	q1  k moves towards (-), away from (+) or neither (0) relative to l
//	q2  the same for l relative to k
//	q3  k moves to the left (-) or right (+) of the line k→l, or neither (0)
//	q4  the same for l relative to the line l→k
//
// Movements whose projection is within QuantisationFactor metres count as 0.
// Variant qtcb emits (q1, q2), qtcc emits (q1, q2, q3, q4) and qtcbc emits
// qtcc states while the agents are within DistanceThreshold of each other and
// qtcb states, padded with Undefined, when they are further apart.
//
// Collapse removes consecutive duplicate states. Validate inserts an
// intermediate state wherever a symbol would jump directly between - and +,
// since continuous motion must pass through 0.
package qtc
