// Package transform converts positions between named planar frames.
//
// Tree stores a parent for each frame together with a 2-D rigid transform
// (translation plus yaw) from the child into the parent. Transform resolves
// both frames to a common root and maps the point through the chain. When a
// frame is not yet known, Transform waits for Set to add it until the context
// expires, then fails with ErrTimeout. Callers bound the wait with
// context.WithTimeout.
//
// Frame names are compared without a leading slash, so "/map" and "map" are
// the same frame.
package transform
