// Package graph implements the editable plugin graph: nodes are plugin
// instances, edges carry audio, note, or automation data between stable
// port channels. Cycle rejection happens here, at the graph-edit API, so
// the compiler (internal/compiler) can assert acyclicity rather than
// re-detect it.
package graph

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// PluginInstanceID identifies one plugin instance in a graph. Never
// reused across deactivations within a session: NodeID is a monotonic
// counter, UniqueID a random tiebreaker for external display.
type PluginInstanceID struct {
	NodeID   int64
	UniqueID uuid.UUID
	RDN      string
}

func (id PluginInstanceID) String() string {
	return fmt.Sprintf("%s#%d", id.RDN, id.NodeID)
}

// PortType distinguishes the three edge-carrying port kinds.
type PortType int

const (
	PortAudio PortType = iota
	PortNote
	PortAutomation
)

// PortChannelID identifies one channel of one port on one plugin,
// stable across plugin restarts so connections survive them.
type PortChannelID struct {
	StableID     uint32
	Type         PortType
	IsInput      bool
	ChannelIndex int
}

// EdgeID identifies one directed connection between two plugin
// port-channels.
type EdgeID struct {
	SrcPlugin  PluginInstanceID
	SrcChannel PortChannelID
	DstPlugin  PluginInstanceID
	DstChannel PortChannelID
}

// node adapts a PluginInstanceID to gonum's graph.Node interface (which
// needs a dense int64 ID); the graph package exposes PluginInstanceID
// everywhere else.
type node struct {
	id PluginInstanceID
}

func (n node) ID() int64 { return n.id.NodeID }

// Graph is the editable plugin connection graph. All mutation happens
// through ModifyGraphRequest (applied atomically, all-or-nothing) so a
// rejected edit never leaves partial state.
type Graph struct {
	g          *simple.DirectedGraph
	nodes      map[int64]PluginInstanceID
	edges      map[EdgeID]struct{}
	nextNodeID int64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		g:     simple.NewDirectedGraph(),
		nodes: make(map[int64]PluginInstanceID),
		edges: make(map[EdgeID]struct{}),
	}
}

// AddPlugin registers a new plugin instance node and returns its ID.
func (gr *Graph) AddPlugin(rdn string) PluginInstanceID {
	id := PluginInstanceID{NodeID: gr.nextNodeID, UniqueID: uuid.New(), RDN: rdn}
	gr.nextNodeID++
	gr.g.AddNode(node{id: id})
	gr.nodes[id.NodeID] = id
	return id
}

// RemovePlugin removes a plugin instance and every edge touching it.
func (gr *Graph) RemovePlugin(id PluginInstanceID) {
	gr.g.RemoveNode(id.NodeID)
	delete(gr.nodes, id.NodeID)
	for e := range gr.edges {
		if e.SrcPlugin.NodeID == id.NodeID || e.DstPlugin.NodeID == id.NodeID {
			delete(gr.edges, e)
		}
	}
}

// HasPlugin reports whether id is currently a node in the graph.
func (gr *Graph) HasPlugin(id PluginInstanceID) bool {
	_, ok := gr.nodes[id.NodeID]
	return ok
}

// ErrCycle is returned by Connect when the edge would create a cycle.
// The graph-edit API refuses such connections outright.
type ErrCycle struct {
	Edge EdgeID
}

func (e ErrCycle) Error() string {
	return fmt.Sprintf("connecting %s -> %s would create a cycle", e.Edge.SrcPlugin, e.Edge.DstPlugin)
}

// ErrPortAlreadyConnected reports that the exact same edge already exists.
type ErrPortAlreadyConnected struct {
	Channel PortChannelID
}

func (e ErrPortAlreadyConnected) Error() string {
	return fmt.Sprintf("input channel %+v is already connected", e.Channel)
}

// Connect adds a directed edge. Any input channel, audio, note or
// automation, may receive several edges; the compiler merges fan-in with
// sum tasks. An edge identical to an existing one is rejected with
// ErrPortAlreadyConnected. Rejects edges that would introduce a cycle,
// leaving the graph unchanged.
func (gr *Graph) Connect(edge EdgeID) error {
	if !gr.HasPlugin(edge.SrcPlugin) || !gr.HasPlugin(edge.DstPlugin) {
		return fmt.Errorf("connect: unknown plugin instance")
	}
	if _, exists := gr.edges[edge]; exists {
		return ErrPortAlreadyConnected{Channel: edge.DstChannel}
	}

	gr.g.SetEdge(gr.g.NewEdge(node{id: edge.SrcPlugin}, node{id: edge.DstPlugin}))
	if !topo.IsDirectedAcyclic(gr.g) {
		gr.g.RemoveEdge(edge.SrcPlugin.NodeID, edge.DstPlugin.NodeID)
		return ErrCycle{Edge: edge}
	}
	gr.edges[edge] = struct{}{}
	return nil
}

// Disconnect removes a directed edge if present.
func (gr *Graph) Disconnect(edge EdgeID) {
	delete(gr.edges, edge)
	if gr.countParallelEdges(edge.SrcPlugin, edge.DstPlugin) == 0 {
		gr.g.RemoveEdge(edge.SrcPlugin.NodeID, edge.DstPlugin.NodeID)
	}
}

func (gr *Graph) countParallelEdges(src, dst PluginInstanceID) int {
	n := 0
	for e := range gr.edges {
		if e.SrcPlugin.NodeID == src.NodeID && e.DstPlugin.NodeID == dst.NodeID {
			n++
		}
	}
	return n
}

// Edges returns every edge currently in the graph, in no particular
// order.
func (gr *Graph) Edges() []EdgeID {
	out := make([]EdgeID, 0, len(gr.edges))
	for e := range gr.edges {
		out = append(out, e)
	}
	return out
}

// EdgesInto returns every edge whose destination is dst.
func (gr *Graph) EdgesInto(dst PluginInstanceID) []EdgeID {
	var out []EdgeID
	for e := range gr.edges {
		if e.DstPlugin.NodeID == dst.NodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesIntoChannel returns every edge feeding one specific input channel
// of dst — the fan-in set the compiler inspects to decide whether a sum
// node is needed.
func (gr *Graph) EdgesIntoChannel(dst PluginInstanceID, ch PortChannelID) []EdgeID {
	var out []EdgeID
	for e := range gr.edges {
		if e.DstPlugin.NodeID == dst.NodeID && e.DstChannel == ch {
			out = append(out, e)
		}
	}
	return out
}

// Plugins returns every plugin instance currently in the graph.
func (gr *Graph) Plugins() []PluginInstanceID {
	out := make([]PluginInstanceID, 0, len(gr.nodes))
	for _, id := range gr.nodes {
		out = append(out, id)
	}
	return out
}

// TopoOrder returns node IDs in a stable topological order, ties broken
// by lower node-id first. It assumes the graph is acyclic, which Connect
// already guarantees; the sum and delay tasks the compiler inserts are
// not graph nodes and are not ordered here.
func (gr *Graph) TopoOrder() ([]PluginInstanceID, error) {
	sorted, err := topo.SortStabilized(gr.g, func(nodes []graph.Node) {
		// SortStabilized's tie-break hook receives nodes already in a
		// valid partial order; an insertion sort by ID keeps ties
		// stable and deterministic by lowest node-id.
		for i := 1; i < len(nodes); i++ {
			for j := i; j > 0 && nodes[j].ID() < nodes[j-1].ID(); j-- {
				nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
			}
		}
	})
	if err != nil {
		return nil, ErrCycle{}
	}
	out := make([]PluginInstanceID, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, gr.nodes[n.ID()])
	}
	return out, nil
}

// ModifyGraphRequest batches graph edits the engine main thread applies
// atomically: either every operation succeeds and a recompile is
// triggered, or the first failure aborts with no partial change.
type ModifyGraphRequest struct {
	AddPlugins     []string // rdn to instantiate
	RemovePlugins  []PluginInstanceID
	ConnectEdges   []EdgeID
	DisconnectEdges []EdgeID
}

// Apply runs every operation in req against gr. On any error the graph
// is restored to its pre-Apply state and the error is returned; newly
// added plugin IDs are only meaningful on success, so they are returned
// alongside the error status.
func (gr *Graph) Apply(req ModifyGraphRequest) ([]PluginInstanceID, error) {
	snapshot := gr.clone()

	added := make([]PluginInstanceID, 0, len(req.AddPlugins))
	for _, rdn := range req.AddPlugins {
		added = append(added, gr.AddPlugin(rdn))
	}
	for _, id := range req.RemovePlugins {
		gr.RemovePlugin(id)
	}
	for _, e := range req.DisconnectEdges {
		gr.Disconnect(e)
	}
	for _, e := range req.ConnectEdges {
		if err := gr.Connect(e); err != nil {
			*gr = *snapshot
			return nil, err
		}
	}
	return added, nil
}

func (gr *Graph) clone() *Graph {
	c := New()
	c.nextNodeID = gr.nextNodeID
	for _, id := range gr.nodes {
		c.g.AddNode(node{id: id})
		c.nodes[id.NodeID] = id
	}
	for e := range gr.edges {
		c.g.SetEdge(c.g.NewEdge(node{id: e.SrcPlugin}, node{id: e.DstPlugin}))
		c.edges[e] = struct{}{}
	}
	return c
}
