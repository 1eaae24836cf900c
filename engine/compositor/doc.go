// Package compositor implements the render graph: node and workspace definitions, their
// instantiation into live workspaces, channel routing between nodes, resource hazard analysis
// and the per-frame execution of passes. Shadow nodes are compositor nodes that additionally
// assign scene lights to shadow maps and position one camera per shadow map.
//
// Definitions are authored once through a Manager, which owns every definition and live
// workspace. The Manager, its workspaces and their nodes are not safe for concurrent use; they
// are meant to be driven from the thread that renders.
package compositor
