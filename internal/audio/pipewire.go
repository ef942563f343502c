package audio

import (
	"fmt"
	"os/exec"
	"strings"
)

// PipeWire queries the PipeWire graph through pw-link.
type PipeWire struct {
	run func(name string, args ...string) ([]byte, error)
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{run: func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).Output()
	}}
}

// ListPorts returns all output ports, i.e. ports that can be captured from.
func (pw *PipeWire) ListPorts() ([]string, error) {
	output, err := pw.run("pw-link", "-o")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// ListNodes groups ports by node, keeping the order in which nodes first
// appear. Each port of a node is one channel.
func (pw *PipeWire) ListNodes() ([]Source, error) {
	ports, err := pw.ListPorts()
	if err != nil {
		return nil, err
	}
	return groupPorts(ports), nil
}

func groupPorts(ports []string) []Source {
	var nodes []Source
	index := make(map[string]int)
	for _, port := range ports {
		node, ok := nodeName(port)
		if !ok {
			continue
		}
		if i, seen := index[node]; seen {
			nodes[i].Channels++
			continue
		}
		index[node] = len(nodes)
		nodes = append(nodes, Source{
			ID:         node,
			Name:       node,
			SampleRate: defaultSampleRate,
			Channels:   1,
		})
	}
	return nodes
}

// nodeName splits "node:port" from the right, node names may contain colons.
func nodeName(port string) (string, bool) {
	i := strings.LastIndex(port, ":")
	if i <= 0 || i == len(port)-1 {
		return "", false
	}
	return strings.TrimSpace(port[:i]), true
}

// ValidateNode checks that a node exists in the current graph.
func (pw *PipeWire) ValidateNode(node string) error {
	nodes, err := pw.ListNodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.ID == node {
			return nil
		}
	}
	return fmt.Errorf("source not found: %s", node)
}
