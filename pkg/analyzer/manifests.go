package analyzer

import (
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"

	"intelligent-resource-analyzer/pkg/scaling"
)

// Manifests are the scaling recommendations rendered as Kubernetes API types,
// ready to paste into a Deployment, HPA or VPA object
type Manifests struct {
	Resources     corev1.ResourceRequirements               `json:"resources"`
	VPAMinAllowed corev1.ResourceList                       `json:"vpaMinAllowed"`
	VPAMaxAllowed corev1.ResourceList                       `json:"vpaMaxAllowed"`
	HPA           autoscalingv2.HorizontalPodAutoscalerSpec `json:"hpa"`
}

// renderManifests targets a Deployment named after the service
func renderManifests(service string, a scaling.Analysis) Manifests {
	minAllowed, maxAllowed := a.VPA.PolicyBounds()
	return Manifests{
		Resources:     a.VPA.ResourceRequirements(),
		VPAMinAllowed: minAllowed,
		VPAMaxAllowed: maxAllowed,
		HPA: a.HPA.Spec(autoscalingv2.CrossVersionObjectReference{
			APIVersion: "apps/v1",
			Kind:       "Deployment",
			Name:       service,
		}),
	}
}
