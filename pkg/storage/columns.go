package storage

import (
	"time"

	"github.com/ClickHouse/ch-go/proto"
)

// BlockRow is one block of one frame of a transaction.
type BlockRow struct {
	UpdatedDateTime time.Time
	TransactionHash string
	FrameID         uint32
	FramePath       []uint32
	CallType        string
	Address         string
	BlockStart      uint32
	BlockEnd        uint32
	Instructions    uint32
	Terminator      string
	Tag             string
	Executed        bool
	Placeholder     bool
	Network         string
}

// EdgeRow is one edge of the stitched graph of a transaction.
type EdgeRow struct {
	UpdatedDateTime time.Time
	TransactionHash string
	FromFrame       uint32
	FromBlock       uint32
	ToFrame         uint32
	ToBlock         uint32
	Kind            string
	CallType        string
	Executed        bool
	Network         string
}

// BlockColumns holds the cfg_block columns for a ch-go columnar insert.
type BlockColumns struct {
	UpdatedDateTime proto.ColDateTime
	TransactionHash proto.ColStr
	FrameID         proto.ColUInt32
	FramePath       *proto.ColArr[uint32]
	CallType        proto.ColStr
	Address         proto.ColStr
	BlockStart      proto.ColUInt32
	BlockEnd        proto.ColUInt32
	Instructions    proto.ColUInt32
	Terminator      proto.ColStr
	Tag             proto.ColStr
	Executed        proto.ColBool
	Placeholder     proto.ColBool
	MetaNetworkName proto.ColStr
}

func NewBlockColumns() *BlockColumns {
	return &BlockColumns{
		FramePath: new(proto.ColUInt32).Array(),
	}
}

func (c *BlockColumns) Append(r *BlockRow) {
	c.UpdatedDateTime.Append(r.UpdatedDateTime)
	c.TransactionHash.Append(r.TransactionHash)
	c.FrameID.Append(r.FrameID)
	c.FramePath.Append(r.FramePath)
	c.CallType.Append(r.CallType)
	c.Address.Append(r.Address)
	c.BlockStart.Append(r.BlockStart)
	c.BlockEnd.Append(r.BlockEnd)
	c.Instructions.Append(r.Instructions)
	c.Terminator.Append(r.Terminator)
	c.Tag.Append(r.Tag)
	c.Executed.Append(r.Executed)
	c.Placeholder.Append(r.Placeholder)
	c.MetaNetworkName.Append(r.Network)
}

func (c *BlockColumns) Input() proto.Input {
	return proto.Input{
		{Name: "updated_date_time", Data: &c.UpdatedDateTime},
		{Name: "transaction_hash", Data: &c.TransactionHash},
		{Name: "frame_id", Data: &c.FrameID},
		{Name: "frame_path", Data: c.FramePath},
		{Name: "call_type", Data: &c.CallType},
		{Name: "address", Data: &c.Address},
		{Name: "block_start", Data: &c.BlockStart},
		{Name: "block_end", Data: &c.BlockEnd},
		{Name: "instructions", Data: &c.Instructions},
		{Name: "terminator", Data: &c.Terminator},
		{Name: "tag", Data: &c.Tag},
		{Name: "executed", Data: &c.Executed},
		{Name: "placeholder", Data: &c.Placeholder},
		{Name: "meta_network_name", Data: &c.MetaNetworkName},
	}
}

func (c *BlockColumns) Rows() int {
	return c.TransactionHash.Rows()
}

// EdgeColumns holds the cfg_edge columns for a ch-go columnar insert.
type EdgeColumns struct {
	UpdatedDateTime proto.ColDateTime
	TransactionHash proto.ColStr
	FromFrame       proto.ColUInt32
	FromBlock       proto.ColUInt32
	ToFrame         proto.ColUInt32
	ToBlock         proto.ColUInt32
	Kind            proto.ColStr
	CallType        proto.ColStr
	Executed        proto.ColBool
	MetaNetworkName proto.ColStr
}

func NewEdgeColumns() *EdgeColumns {
	return &EdgeColumns{}
}

func (c *EdgeColumns) Append(r *EdgeRow) {
	c.UpdatedDateTime.Append(r.UpdatedDateTime)
	c.TransactionHash.Append(r.TransactionHash)
	c.FromFrame.Append(r.FromFrame)
	c.FromBlock.Append(r.FromBlock)
	c.ToFrame.Append(r.ToFrame)
	c.ToBlock.Append(r.ToBlock)
	c.Kind.Append(r.Kind)
	c.CallType.Append(r.CallType)
	c.Executed.Append(r.Executed)
	c.MetaNetworkName.Append(r.Network)
}

func (c *EdgeColumns) Input() proto.Input {
	return proto.Input{
		{Name: "updated_date_time", Data: &c.UpdatedDateTime},
		{Name: "transaction_hash", Data: &c.TransactionHash},
		{Name: "from_frame", Data: &c.FromFrame},
		{Name: "from_block", Data: &c.FromBlock},
		{Name: "to_frame", Data: &c.ToFrame},
		{Name: "to_block", Data: &c.ToBlock},
		{Name: "kind", Data: &c.Kind},
		{Name: "call_type", Data: &c.CallType},
		{Name: "executed", Data: &c.Executed},
		{Name: "meta_network_name", Data: &c.MetaNetworkName},
	}
}

func (c *EdgeColumns) Rows() int {
	return c.TransactionHash.Rows()
}
