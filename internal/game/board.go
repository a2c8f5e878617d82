package game

import (
	"errors"
	"math/rand"
)

const (
	// GridSize is the side length of the square board.
	GridSize = 10
	// Cells is the number of addressable cells.
	Cells = GridSize * GridSize
	// TotalShipCells is the occupancy of a standard fleet. A player whose
	// hits received reach this number has lost.
	TotalShipCells = 17
)

var (
	ErrNonBinaryCell = errors.New("board has non-binary cell")
	ErrFleetSize     = errors.New("board must contain exactly 17 ship cells")
	ErrPlacement     = errors.New("failed to place ships")
)

// ValidCoordinate reports whether (x, y) lies on the board.
func ValidCoordinate(x, y int) bool {
	return x >= 0 && x < GridSize && y >= 0 && y < GridSize
}

// CellIndex maps a valid coordinate onto [0, Cells). x is the row.
func CellIndex(x, y int) int { return x*GridSize + y }

// Coordinate is the inverse of CellIndex.
func Coordinate(idx int) (x, y int) { return idx / GridSize, idx % GridSize }

// Board is a 10x10 grid held by the defending client. Cell: 0=water, 1=ship.
// The coordinator never sees it, only a commitment to it.
type Board struct {
	Cells [GridSize][GridSize]uint8 `json:"cells"`
}

var shipSizes = []int{5, 4, 3, 3, 2}

func (b *Board) Validate() error {
	total := 0
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			v := b.Cells[x][y]
			if v > 1 {
				return ErrNonBinaryCell
			}
			total += int(v)
		}
	}
	if total != TotalShipCells {
		return ErrFleetSize
	}
	return nil
}

// At returns the cell value at (x, y).
func (b *Board) At(x, y int) uint8 { return b.Cells[x][y] }

// Flatten lays the board out row-major, index CellIndex(x, y).
func (b *Board) Flatten() []uint8 {
	out := make([]uint8, 0, Cells)
	for x := 0; x < GridSize; x++ {
		out = append(out, b.Cells[x][:]...)
	}
	return out
}

// GenerateRandomBoard places the standard fleet without overlap. Adjacency is allowed.
func GenerateRandomBoard(rng *rand.Rand) (Board, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	var b Board
	tries := 0
	for _, size := range shipSizes {
		for {
			if tries > 10000 {
				return Board{}, ErrPlacement
			}
			tries++
			if b.place(size, rng.Intn(2) == 0, rng.Intn(GridSize), rng.Intn(GridSize)) {
				break
			}
		}
	}
	return b, nil
}

func (b *Board) place(size int, vertical bool, x, y int) bool {
	dx, dy := 0, 1
	if vertical {
		dx, dy = 1, 0
	}
	if x+dx*(size-1) >= GridSize || y+dy*(size-1) >= GridSize {
		return false
	}
	for i := 0; i < size; i++ {
		if b.Cells[x+dx*i][y+dy*i] == 1 {
			return false
		}
	}
	for i := 0; i < size; i++ {
		b.Cells[x+dx*i][y+dy*i] = 1
	}
	return true
}
