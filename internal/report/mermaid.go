package report

import (
	"fmt"
	"strings"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/topology"
)

var linkColors = map[topology.LinkStatus]string{
	topology.LinkNormal:   "#2E8B57",
	topology.LinkElevated: "#DAA520",
	topology.LinkWarning:  "#FF8C00",
	topology.LinkCritical: "#FF0000",
}

// TopologyDiagram renders a view as a Mermaid flowchart. Edges are
// labelled with the peak utilization and colored by link status.
func TopologyDiagram(t *topology.Topology) string {
	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart TD\n")

	if t == nil || len(t.Nodes) == 0 {
		sb.WriteString("    empty[No devices]\n")
		sb.WriteString("```\n")
		return sb.String()
	}

	for _, n := range t.Nodes {
		label := fmt.Sprintf("%s\\n%s", shortenHostname(n.Hostname), n.IP)
		if n.ActiveAlerts > 0 {
			label += fmt.Sprintf("\\n%d alerts", n.ActiveAlerts)
		}
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]:::%s\n", deviceNodeID(n.ID), escapeLabel(label), nodeClass(n)))
	}
	sb.WriteString("\n")

	for i, l := range t.Links {
		label := fmt.Sprintf("%.0f%% of %s", l.PeakUtilization(), FormatMbps(l.TotalBandwidthMbps))
		sb.WriteString(fmt.Sprintf("    %s ---|\"%s\"| %s\n", deviceNodeID(l.DeviceAID), label, deviceNodeID(l.DeviceBID)))
		sb.WriteString(fmt.Sprintf("    linkStyle %d stroke:%s,stroke-width:2px\n", i, linkColors[l.Status]))
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef managed fill:#90EE90\n")
	sb.WriteString("    classDef offline fill:#FFB6C1,stroke:#FF0000\n")
	sb.WriteString("    classDef unknown fill:#D3D3D3\n")
	sb.WriteString("    classDef context fill:#87CEEB,stroke-dasharray: 5 5\n")
	sb.WriteString("```\n")

	return sb.String()
}

// HierarchyDiagram renders a descendant subtree as a Mermaid flowchart.
func HierarchyDiagram(root *topology.TreeNode) string {
	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart TD\n")

	var walk func(n *topology.TreeNode)
	walk = func(n *topology.TreeNode) {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", deviceNodeID(n.Device.ID), escapeLabel(n.Device.Hostname)))
		for _, c := range n.Children {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", deviceNodeID(n.Device.ID), deviceNodeID(c.Device.ID)))
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}

	sb.WriteString("```\n")
	return sb.String()
}

func nodeClass(n topology.Node) string {
	if n.Role == topology.RoleParent || n.Role == topology.RoleUpstream {
		return "context"
	}
	switch n.Status {
	case model.StatusManaged:
		return "managed"
	case model.StatusOffline:
		return "offline"
	}
	return "unknown"
}

func deviceNodeID(id int64) string {
	return fmt.Sprintf("D%d", id)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}

func shortenHostname(hostname string) string {
	if len(hostname) > 20 {
		parts := strings.Split(hostname, ".")
		if len(parts) > 2 {
			return parts[0] + "..."
		}
		return hostname[:17] + "..."
	}
	return hostname
}

// FormatMbps renders a bandwidth as 10G or 100M.
func FormatMbps(mbps int64) string {
	if mbps >= 1000 && mbps%1000 == 0 {
		return fmt.Sprintf("%dG", mbps/1000)
	}
	return fmt.Sprintf("%dM", mbps)
}
