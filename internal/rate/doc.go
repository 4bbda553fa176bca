// Package rate implements the fixed-window limiter shared by every throttled
// flow. A window is one Redis counter per (scope, identity); the increment,
// the first-hit expiry and the threshold comparison run in one Lua script so
// concurrent requests from the same identity cannot race past the limit.
//
// Keys: <prefix>:<scope>:<identity>
//
// Exceeding the limit never resets or shortens the window.
package rate
