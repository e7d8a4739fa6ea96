// Package fanout delivers chat messages to every live connection viewing a
// group.
//
// A Registry keeps the group -> connections index used for delivery. A
// Broadcaster turns one inbound chat payload into a persisted record and a
// wire message pushed to each open member of the target group. Connections
// join a group implicitly: the first message a connection sends for a group
// associates it with that group, and a later message for another group moves
// it there.
package fanout
