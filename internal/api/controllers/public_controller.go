package controllers

import (
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const yearlyDiscount = 0.15

// PricePlan 套餐价格，单位为卢比，0表示需要联系销售
type PricePlan struct {
	Name        string   `json:"name"`
	Info        string   `json:"info"`
	Monthly     int      `json:"monthly"`
	Yearly      int      `json:"yearly"`
	Features    []string `json:"features"`
	Highlighted bool     `json:"highlighted,omitempty"`
	CallToText  string   `json:"ctaText"`
	CallToHref  string   `json:"ctaHref"`
}

// yearlyPrice 按月价基准计算年付价格并应用年付折扣
func yearlyPrice(monthlyBase int) int {
	return int(math.Round(float64(monthlyBase) * 12 * (1 - yearlyDiscount)))
}

// PricingPlans 公开的套餐列表
var PricingPlans = []PricePlan{
	{
		Name:    "Basic",
		Info:    "Best for small businesses & solo founders",
		Monthly: 599,
		Yearly:  yearlyPrice(4999),
		Features: []string{
			"Website built for free",
			"Up to 5 pages",
			"Hosting included",
			"Monthly maintenance & updates",
			"Mobile responsive design",
			"Basic SEO setup",
			"SSL & security included",
			"1–2 content changes per month",
			"Email support",
		},
		CallToText: "Get Started Free",
		CallToHref: "/signup",
	},
	{
		Name:        "Pro",
		Info:        "Most popular for growing startups",
		Monthly:     3999,
		Yearly:      yearlyPrice(9999),
		Highlighted: true,
		Features: []string{
			"Website built for free",
			"Unlimited pages",
			"Custom design & sections",
			"Hosting included",
			"Priority support",
			"Advanced SEO structure",
			"Blog / CMS integration",
			"Performance optimization",
			"5–8 content changes per month",
		},
		CallToText: "Start Building",
		CallToHref: "/signup",
	},
	{
		Name: "Enterprise",
		Info: "For large teams & complex requirements",
		Features: []string{
			"Custom pricing based on requirements",
			"Fully custom design system",
			"Unlimited pages & changes",
			"Advanced integrations & APIs",
			"Dedicated account manager",
			"Custom hosting & scaling setup",
			"Security & uptime monitoring",
			"SLA-backed support",
		},
		CallToText: "Contact Sales",
		CallToHref: "/contact",
	},
}

// robotsDisallow 不允许爬虫访问的路径
var robotsDisallow = []string{
	"/api/",
	"/_next/",
	"/dashboard/",
	"/sso-callback/",
	"/providers/",
	"/admin/",
	"/private/",
}

// PublicController 公开页面控制器
type PublicController struct {
	publicURL string
}

// NewPublicController 创建公开页面控制器实例
func NewPublicController(publicURL string) *PublicController {
	return &PublicController{publicURL: strings.TrimRight(publicURL, "/")}
}

// GetPricing 获取套餐价格
func (c *PublicController) GetPricing(ctx *gin.Context) {
	respondSuccess(ctx, gin.H{
		"currency":       "INR",
		"yearlyDiscount": yearlyDiscount,
		"plans":          PricingPlans,
	})
}

// Robots robots.txt
func (c *PublicController) Robots(ctx *gin.Context) {
	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\n")
	for _, path := range robotsDisallow {
		fmt.Fprintf(&b, "Disallow: %s\n", path)
	}
	if c.publicURL != "" {
		fmt.Fprintf(&b, "\nSitemap: %s/sitemap.xml\n", c.publicURL)
	}
	ctx.String(http.StatusOK, b.String())
}
