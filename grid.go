package main

import (
	"math"
	"sync"
)

// cell is one grid square with its own lock
type cell struct {
	mu      sync.RWMutex
	objects map[*Object]struct{}
}

func (c *cell) remove(o *Object) {
	c.mu.Lock()
	delete(c.objects, o)
	c.mu.Unlock()
}

// Grid is a fixed-size uniform grid shared by all shards. Each cell is
// locked independently so shards only contend on colocated entities.
type Grid struct {
	width, height int
	cellSize      int
	rows, cols    int
	cells         []cell // row-major, rows*cols

	stats *Stats
}

// NewGrid sizes the grid to cover width x height with square cells
func NewGrid(width, height, cellSize int, stats *Stats) *Grid {
	rows := (height + cellSize - 1) / cellSize
	cols := (width + cellSize - 1) / cellSize
	g := &Grid{
		width:    width,
		height:   height,
		cellSize: cellSize,
		rows:     rows,
		cols:     cols,
		cells:    make([]cell, rows*cols),
		stats:    stats,
	}
	for i := range g.cells {
		g.cells[i].objects = make(map[*Object]struct{})
	}
	return g
}

// Dimensions returns the cell counts and cell size
func (g *Grid) Dimensions() (rows, cols, cellSize int) {
	return g.rows, g.cols, g.cellSize
}

func (g *Grid) inBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < g.rows && col < g.cols
}

func (g *Grid) at(row, col int) *cell {
	return &g.cells[row*g.cols+col]
}

// cellOf maps a world coordinate to a row or column index
func (g *Grid) cellOf(v float64) int {
	f := math.Floor(v / float64(g.cellSize))
	switch {
	case math.IsNaN(f):
		return -1
	case f < math.MinInt32:
		return math.MinInt32
	case f > math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}

// Insert files the object under the cell of its stored position. Out of
// bounds positions are dropped silently.
func (g *Grid) Insert(o *Object) {
	x, y := o.Position()
	row, col := g.cellOf(y), g.cellOf(x)
	if !g.inBounds(row, col) {
		return
	}
	g.insertAt(o, row, col)
}

func (g *Grid) insertAt(o *Object, row, col int) {
	c := g.at(row, col)
	c.mu.Lock()
	c.objects[o] = struct{}{}
	o.setCell(row, col)
	c.mu.Unlock()
	g.stats.GridOp()
}

// Remove takes the object out of its cached cell. Stale or out of bounds
// coordinates are a no-op.
func (g *Grid) Remove(o *Object) {
	row, col := o.cell()
	if !g.inBounds(row, col) {
		return
	}
	g.at(row, col).remove(o)
	g.stats.GridOp()
}

// Update moves the object to the cell of its extrapolated position at now.
// When the cell changes the position is committed and the lifetime aged;
// when it does not, nothing is written. An object that extrapolates off the
// world leaves the grid. Returns true if the object changed cell.
func (g *Grid) Update(o *Object, now int64) bool {
	oldRow, oldCol := o.cell()
	newRow, newCol := g.cellOf(o.CurY(now)), g.cellOf(o.CurX(now))

	if !g.inBounds(newRow, newCol) {
		if g.inBounds(oldRow, oldCol) {
			g.at(oldRow, oldCol).remove(o)
			o.setCell(-1, -1)
			g.stats.GridOp()
		}
		return false
	}
	if newRow == oldRow && newCol == oldCol {
		return false
	}

	g.Remove(o)
	o.Commit(now)
	g.insertAt(o, newRow, newCol)
	return true
}

// Search returns the objects in every cell overlapping the rectangle.
// Each cell is read-locked on its own, so the result is a concatenation of
// per-cell snapshots rather than one atomic view of the region.
func (g *Grid) Search(lowerY, upperY, leftX, rightX float64) []*Object {
	return g.SearchBuf(lowerY, upperY, leftX, rightX, nil)
}

// SearchBuf appends results to buf and returns the extended slice, avoiding per-call allocation
func (g *Grid) SearchBuf(lowerY, upperY, leftX, rightX float64, buf []*Object) []*Object {
	lowerRow, upperRow := g.cellOf(lowerY), g.cellOf(upperY)
	leftCol, rightCol := g.cellOf(leftX), g.cellOf(rightX)
	if lowerRow < 0 {
		lowerRow = 0
	}
	if upperRow >= g.rows {
		upperRow = g.rows - 1
	}
	if leftCol < 0 {
		leftCol = 0
	}
	if rightCol >= g.cols {
		rightCol = g.cols - 1
	}

	for r := lowerRow; r <= upperRow; r++ {
		for c := leftCol; c <= rightCol; c++ {
			cl := g.at(r, c)
			cl.mu.RLock()
			for o := range cl.objects {
				buf = append(buf, o)
			}
			cl.mu.RUnlock()
		}
	}
	return buf
}

// Contains reports whether the object is filed under its cached cell
func (g *Grid) Contains(o *Object) bool {
	row, col := o.cell()
	if !g.inBounds(row, col) {
		return false
	}
	c := g.at(row, col)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.objects[o]
	return ok
}

// Len counts references across all cells, locking one cell at a time
func (g *Grid) Len() int {
	n := 0
	for i := range g.cells {
		c := &g.cells[i]
		c.mu.RLock()
		n += len(c.objects)
		c.mu.RUnlock()
	}
	return n
}
