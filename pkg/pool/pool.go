package pool

import (
	"sync"

	"github.com/flybeeper/track-filter/internal/models"
)

// PositionPools содержит пулы объектов горячего пути ingest-конвейера.
// Позиции создаются на каждое MQTT сообщение; отклоненные фильтром
// возвращаются в пул, принятые остаются жить как lastPosition устройства
// и в пул не возвращаются.
type PositionPools struct {
	positionPool  sync.Pool
	byteSlicePool sync.Pool
}

// Global пулы объектов
var Global = &PositionPools{
	positionPool: sync.Pool{
		New: func() interface{} {
			return &models.Position{}
		},
	},
	byteSlicePool: sync.Pool{
		New: func() interface{} {
			b := make([]byte, 0, 512)
			return &b
		},
	},
}

// GetPosition возвращает чистую позицию из пула
func (p *PositionPools) GetPosition() *models.Position {
	return p.positionPool.Get().(*models.Position)
}

// PutPosition возвращает позицию в пул. Вызывающий не должен
// использовать объект после возврата.
func (p *PositionPools) PutPosition(pos *models.Position) {
	if pos == nil {
		return
	}
	pos.Reset()
	p.positionPool.Put(pos)
}

// GetByteSlice возвращает буфер из пула
func (p *PositionPools) GetByteSlice() *[]byte {
	return p.byteSlicePool.Get().(*[]byte)
}

// PutByteSlice возвращает буфер в пул
func (p *PositionPools) PutByteSlice(b *[]byte) {
	if b == nil {
		return
	}
	*b = (*b)[:0]
	p.byteSlicePool.Put(b)
}
