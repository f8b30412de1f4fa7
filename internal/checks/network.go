package checks

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/scan-io-git/cloudsentinel/internal/model"
)

const DomainNetwork = "Network Exposure"

var sensitivePorts = []int64{22, 3389, 5432, 3306, 6379, 9200, 27017}

var openSensitivePortsDef = Definition{
	ID:         "net.sg_open_sensitive_ports",
	Title:      "Security groups open to 0.0.0.0/0 on sensitive ports",
	Domain:     DomainNetwork,
	Severity:   model.SeverityCritical,
	Weight:     15,
	References: []string{"https://docs.aws.amazon.com/vpc/latest/userguide/VPC_SecurityGroups.html"},
	ErrorHint:  "Ensure the scanning role can call ec2:DescribeSecurityGroups.",
}

func openSensitivePorts(ctx context.Context, env Environment, _ string) (Outcome, error) {
	out, err := env.EC2().DescribeSecurityGroupsWithContext(ctx, &ec2.DescribeSecurityGroupsInput{MaxResults: aws.Int64(200)})
	if err != nil {
		return Outcome{}, err
	}

	var open []map[string]interface{}
	for _, sg := range out.SecurityGroups {
		for _, perm := range sg.IpPermissions {
			if perm.FromPort == nil || perm.ToPort == nil {
				continue
			}
			from, to := *perm.FromPort, *perm.ToPort
			if !coversSensitivePort(from, to) {
				continue
			}
			for _, cidr := range publicCIDRs(perm) {
				open = append(open, map[string]interface{}{
					"group_id":   aws.StringValue(sg.GroupId),
					"group_name": aws.StringValue(sg.GroupName),
					"from":       from,
					"to":         to,
					"cidr":       cidr,
				})
			}
		}
	}

	ports := append([]int64(nil), sensitivePorts...)
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

	status := model.StatusPass
	if len(open) > 0 {
		status = model.StatusFail
	}
	return Outcome{
		Status:         status,
		Evidence:       map[string]interface{}{"findings": sample(open, 25), "count": len(open), "ports": ports},
		Recommendation: "Restrict inbound rules: remove 0.0.0.0/0 access on admin/database ports; use VPN/bastion/SSM.",
	}, nil
}

// coversSensitivePort reports whether [from, to] includes a sensitive port. A range of
// -1 (all traffic) covers everything.
func coversSensitivePort(from, to int64) bool {
	if from == -1 || to == -1 {
		return true
	}
	for _, p := range sensitivePorts {
		if p >= from && p <= to {
			return true
		}
	}
	return false
}

func publicCIDRs(perm *ec2.IpPermission) []string {
	var cidrs []string
	for _, r := range perm.IpRanges {
		if aws.StringValue(r.CidrIp) == "0.0.0.0/0" {
			cidrs = append(cidrs, "0.0.0.0/0")
		}
	}
	for _, r := range perm.Ipv6Ranges {
		if aws.StringValue(r.CidrIpv6) == "::/0" {
			cidrs = append(cidrs, "::/0")
		}
	}
	return cidrs
}
