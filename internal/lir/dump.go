// dump.go - LIR 的 JSON 转储与结构指纹
//
// 转储仅用于调试和测试比对，不是跨进程协议。
// 指纹是转储的 BLAKE2b-256 摘要，同一个图两次降级必须得到相同指纹。

package lir

import (
	"encoding/hex"

	"github.com/segmentio/encoding/json"
	"golang.org/x/crypto/blake2b"
)

type dumpOperand struct {
	Value string `json:"value"`
	Flags string `json:"flags"`
}

type dumpInstruction struct {
	Op      string        `json:"op"`
	Defs    []dumpOperand `json:"defs,omitempty"`
	Uses    []dumpOperand `json:"uses,omitempty"`
	Temps   []dumpOperand `json:"temps,omitempty"`
	Alive   []dumpOperand `json:"alive,omitempty"`
	Targets []int         `json:"targets,omitempty"`
	BCI     *int          `json:"bci,omitempty"`
	Text    string        `json:"text"`
}

type dumpBlock struct {
	ID           int               `json:"id"`
	Preds        []int             `json:"preds,omitempty"`
	Succs        []int             `json:"succs,omitempty"`
	LoopHeader   bool              `json:"loopHeader,omitempty"`
	Instructions []dumpInstruction `json:"instructions"`
}

type dumpLIR struct {
	Name                string      `json:"name"`
	FullFrame           bool        `json:"fullFrame"`
	HasArgInCallerFrame bool        `json:"hasArgInCallerFrame"`
	FrameSize           int         `json:"frameSize"`
	Variables           int         `json:"variables"`
	Blocks              []dumpBlock `json:"blocks"`
}

func dumpOperands(ops []Operand) []dumpOperand {
	if len(ops) == 0 {
		return nil
	}
	out := make([]dumpOperand, len(ops))
	for i, op := range ops {
		out[i] = dumpOperand{Value: op.Value.String(), Flags: op.Flags.String()}
	}
	return out
}

func blockIDs(bs []*Block) []int {
	if len(bs) == 0 {
		return nil
	}
	ids := make([]int, len(bs))
	for i, b := range bs {
		ids[i] = b.ID
	}
	return ids
}

func (l *LIR) toDump() dumpLIR {
	d := dumpLIR{
		Name:                l.Name,
		FullFrame:           l.FullFrame,
		HasArgInCallerFrame: l.HasArgInCallerFrame,
		Variables:           len(l.variables),
	}
	if l.frameMap != nil {
		d.FrameSize = l.frameMap.FrameSize()
	}
	for _, b := range l.blocks {
		db := dumpBlock{ID: b.ID, Preds: blockIDs(b.Preds), Succs: blockIDs(b.Succs), LoopHeader: b.LoopHeader}
		for _, inst := range b.instructions {
			di := dumpInstruction{
				Op:      inst.Opcode(),
				Defs:    dumpOperands(inst.Defs()),
				Uses:    dumpOperands(inst.Uses()),
				Temps:   dumpOperands(inst.Temps()),
				Alive:   dumpOperands(inst.Alive()),
				Targets: blockIDs(inst.Targets()),
				Text:    inst.String(),
			}
			if s := inst.State(); s != nil {
				bci := s.BCI
				di.BCI = &bci
			}
			db.Instructions = append(db.Instructions, di)
		}
		d.Blocks = append(d.Blocks, db)
	}
	return d
}

// Dump 把 LIR 序列化为缩进的 JSON
func Dump(l *LIR) ([]byte, error) {
	return json.MarshalIndent(l.toDump(), "", "  ")
}

// Fingerprint 返回 LIR 结构的 BLAKE2b-256 十六进制摘要
func Fingerprint(l *LIR) (string, error) {
	data, err := json.Marshal(l.toDump())
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
