package codegen

import (
	"fmt"
	"sort"

	"sable/internal/mir"
	"sable/internal/target"
)

// noRegister marks a graph node not yet coloured (or unable to be).
const noRegister = ^uint32(0)

// Spiller rewrites a spilled virtual register into short-lived reload and
// store registers around each use and definition; the target supplies it
// because it must emit target move instructions.
type Spiller interface {
	Spill(reg uint32, f *mir.Function)
}

// GraphColorRegalloc is a Chaitin-style graph-colouring allocator with
// iterated spilling: discover live ranges, build the interference graph,
// simplify and select, spill what cannot be coloured, repeat. Spilling
// strictly narrows live ranges, so the loop terminates.
type GraphColorRegalloc struct {
	instrInfo target.InstructionInfo
	regInfo   target.RegisterInfo
	spiller   Spiller
}

func NewGraphColorRegalloc(instrInfo target.InstructionInfo, regInfo target.RegisterInfo, spiller Spiller) *GraphColorRegalloc {
	return &GraphColorRegalloc{instrInfo: instrInfo, regInfo: regInfo, spiller: spiller}
}

func (GraphColorRegalloc) Name() string { return "regalloc" }

type graphNode struct {
	id          uint32
	connections map[uint32]bool
	physical    uint32
}

type colorGraph struct {
	nodes []*graphNode
}

func (g *colorGraph) add(n *graphNode) { g.nodes = append(g.nodes, n) }

func (g *colorGraph) find(id uint32) *graphNode {
	for _, n := range g.nodes {
		if n.id == id {
			return n
		}
	}
	return nil
}

func (g *colorGraph) remove(id uint32) {
	for _, n := range g.nodes {
		delete(n.connections, id)
	}
	for i, n := range g.nodes {
		if n.id == id {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			return
		}
	}
}

// fewestNeighbours picks the node to sacrifice when nothing is trivially
// colourable.
func (g *colorGraph) fewestNeighbours() *graphNode {
	var best *graphNode
	for _, n := range g.nodes {
		if best == nil || len(n.connections) < len(best.connections) {
			best = n
		}
	}
	return best
}

func (p *GraphColorRegalloc) RunOnMachineFunction(f *mir.Function) bool {
	for {
		p.processSpills(f)
		p.analyze(f)
		if len(f.RegInfo().Spills()) == 0 {
			break
		}
	}
	p.rewriteToPhysical(f)
	return false
}

func (p *GraphColorRegalloc) processSpills(f *mir.Function) {
	spills := append([]uint32(nil), f.RegInfo().Spills()...)
	f.RegInfo().ClearSpills()
	for _, spill := range spills {
		p.spiller.Spill(spill, f)
	}
	f.RegInfo().ResetAllocation()
}

func (p *GraphColorRegalloc) analyze(f *mir.Function) {
	blocks := computeLiveRanges(f, p.instrInfo, p.regInfo)

	// One node per virtual register; overlaps accumulate over every block
	// the register has ranges in. Physical registers appear only as
	// connections: they constrain colours without being colourable.
	graph := &colorGraph{}
	visited := make(map[uint32]bool)
	for _, block := range blocks {
		for _, lr := range block.vector {
			if p.regInfo.IsPhysical(lr.ID) {
				continue
			}
			conns := overlaps(lr.ID, block)
			if visited[lr.ID] {
				node := graph.find(lr.ID)
				for c := range conns {
					node.connections[c] = true
				}
				continue
			}
			visited[lr.ID] = true
			graph.add(&graphNode{id: lr.ID, connections: conns, physical: noRegister})
		}
	}
	sort.SliceStable(graph.nodes, func(i, j int) bool {
		return len(graph.nodes[i].connections) > len(graph.nodes[j].connections)
	})

	var workStack []*graphNode
	for len(graph.nodes) > 0 {
		removed := false
		for _, node := range graph.nodes {
			info := f.RegInfo().VirtualRegisterInfo(node.id)
			avail := p.regInfo.AvailableRegisters(info.Class)
			if p.virtualDegree(node.connections) >= len(avail) {
				continue
			}
			workStack = append(workStack, node)
			graph.remove(node.id)
			removed = true
			break
		}
		if !removed {
			node := graph.fewestNeighbours()
			graph.remove(node.id)
			f.RegInfo().AddSpill(node.id)
		}
	}

	// Select in reverse removal order: the first class register not taken
	// by a neighbour, alias-aware against physical neighbours and against
	// colours already assigned.
	for len(workStack) > 0 {
		node := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]

		info := f.RegInfo().VirtualRegisterInfo(node.id)
		for _, phys := range p.regInfo.AvailableRegisters(info.Class) {
			taken := false
			for conn := range node.connections {
				if p.regInfo.IsPhysical(conn) {
					if p.regInfo.IsSameRegister(conn, phys) {
						taken = true
						break
					}
					continue
				}
				neighbour := graph.find(conn)
				if neighbour == nil || neighbour.physical == noRegister {
					continue
				}
				if p.regInfo.IsSameRegister(neighbour.physical, phys) {
					taken = true
					break
				}
			}
			if !taken {
				node.physical = phys
				break
			}
		}
		graph.add(node)
	}

	for _, node := range graph.nodes {
		if node.physical == noRegister {
			f.RegInfo().AddSpill(node.id)
			continue
		}
		f.RegInfo().SetMapping(node.id, node.physical)
	}
}

// virtualDegree counts only virtual neighbours; physical ones do not bound
// the simplification heuristic.
func (p *GraphColorRegalloc) virtualDegree(connections map[uint32]bool) int {
	count := 0
	for conn := range connections {
		if !p.regInfo.IsPhysical(conn) {
			count++
		}
	}
	return count
}

// rewriteToPhysical replaces every virtual register operand with its
// colour. Width-forcing flags pick the sub-register alias of the chosen
// colour through the target table.
func (p *GraphColorRegalloc) rewriteToPhysical(f *mir.Function) {
	rewrite := func(reg *mir.Register) *mir.Register {
		if !reg.IsVirtual() {
			return reg
		}
		phys, ok := f.RegInfo().Mapping(reg.ID())
		if !ok {
			panic(fmt.Sprintf("regalloc: no colour for %%%d", reg.ID()))
		}
		size := 0
		switch {
		case reg.HasFlag(mir.FlagForce64Bit):
			size = 8
		case reg.HasFlag(mir.FlagForce32Bit):
			size = 4
		case reg.HasFlag(mir.FlagForce16Bit):
			size = 2
		case reg.HasFlag(mir.FlagForce8Bit):
			size = 1
		}
		if size != 0 {
			sized, ok := p.regInfo.RegisterWithSize(phys, size)
			if !ok {
				panic(fmt.Sprintf("regalloc: register %d has no %d-byte alias", phys, size))
			}
			phys = sized
		}
		return p.regInfo.Register(phys)
	}

	for _, b := range f.Blocks() {
		for _, inst := range b.Instructions() {
			for n, op := range inst.Operands() {
				switch o := op.(type) {
				case *mir.Register:
					inst.SetOperand(n, rewrite(o))
				case *mir.Memory:
					if r, ok := o.Base.(*mir.Register); ok {
						o.Base = rewrite(r)
					}
					if r, ok := o.Index.(*mir.Register); ok {
						o.Index = rewrite(r)
					}
				}
			}
		}
	}
}
