package ai

import (
	"context"
	"fmt"
)

type panelMember struct {
	id        string
	generator Generator
}

// NewPanel returns n model identities named "<prefix>_1" .. "<prefix>_n",
// each sending the request to the same generator independently.
func NewPanel(prefix string, n int, generator Generator) []ModelClient {
	clients := make([]ModelClient, 0, n)
	for i := 1; i <= n; i++ {
		clients = append(clients, &panelMember{
			id:        fmt.Sprintf("%s_%d", prefix, i),
			generator: generator,
		})
	}
	return clients
}

func (p *panelMember) ID() string {
	return p.id
}

func (p *panelMember) Grade(ctx context.Context, req GradeRequest) (GradeResponse, error) {
	raw, err := p.generator.Generate(ctx, req)
	if err != nil {
		return GradeResponse{}, err
	}

	resp, err := ParseGradeResponse(raw)
	if err != nil {
		return GradeResponse{}, fmt.Errorf("%s: %w", p.id, err)
	}
	return resp, nil
}
